package crowdfund

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/native/access"
	"fundchain/native/common"
)

func TestCreateProjectValidations(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ProjectData, *[]*big.Int)
		wantErr error
	}{
		{"unsupported token", func(d *ProjectData, _ *[]*big.Int) { d.ExchangeToken = otherToken }, ErrTokenNotSupported},
		{"no thresholds", func(_ *ProjectData, b *[]*big.Int) { *b = nil }, ErrZeroThresholds},
		{"zero required amount", func(d *ProjectData, _ *[]*big.Int) { d.RequiredAmount = big.NewInt(0) }, ErrZeroRequiredAmount},
		{"nil required amount", func(d *ProjectData, _ *[]*big.Int) { d.RequiredAmount = nil }, ErrZeroRequiredAmount},
		{"zero owner", func(d *ProjectData, _ *[]*big.Int) { d.Owner = [20]byte{} }, ErrZeroAddress},
		{"zero cooldown", func(d *ProjectData, _ *[]*big.Int) { d.VoteCooldown = 0 }, ErrZeroVoteCooldown},
		{"zero vote percentage", func(d *ProjectData, _ *[]*big.Int) { d.RequiredVotePercentage = 0 }, ErrZeroRequiredVotePercentage},
		{"vote percentage above max", func(d *ProjectData, _ *[]*big.Int) { d.RequiredVotePercentage = 10_001 }, ErrCantGoAbove10000},
		{"fee above max", func(d *ProjectData, _ *[]*big.Int) { d.DonationFeeBps = 10_001 }, ErrCantGoAbove10000},
		{"zero budget", func(_ *ProjectData, b *[]*big.Int) { (*b)[1] = big.NewInt(0) }, ErrZeroAmount},
		{"unsupported token checked first", func(d *ProjectData, b *[]*big.Int) {
			d.ExchangeToken = otherToken
			d.RequiredAmount = big.NewInt(0)
			*b = nil
		}, ErrTokenNotSupported},
		{"thresholds checked before amount", func(d *ProjectData, b *[]*big.Int) {
			d.RequiredAmount = big.NewInt(0)
			*b = nil
		}, ErrZeroThresholds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			data := testProjectData()
			budgets := testBudgets()
			tc.mutate(&data, &budgets)
			_, err := h.engine.CreateProject(testUpdater, data, budgets)
			require.ErrorIs(t, err, tc.wantErr)
			count, err := h.engine.ProjectCount()
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestCreateProjectRequiresUpdater(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateProject(testStranger, testProjectData(), testBudgets())
	require.True(t, access.IsMissingRole(err))
}

func TestCreateProjectWhilePaused(t *testing.T) {
	h := newHarness(t)
	h.pauses.paused = true
	_, err := h.engine.CreateProject(testUpdater, testProjectData(), testBudgets())
	require.ErrorIs(t, err, common.ErrModulePaused)
	count, err := h.engine.ProjectCount()
	require.NoError(t, err)
	require.Zero(t, count)

	// Role is checked before the pause flag.
	_, err = h.engine.CreateProject(testStranger, testProjectData(), testBudgets())
	require.True(t, access.IsMissingRole(err))
}

func TestCreateProjectStoresRecords(t *testing.T) {
	h := newHarness(t)
	data := testProjectData()
	data.Name = "  MyProject  "
	data.TeamMembers = []string{"TeamMember1", " ", "TeamMember2"}

	first := h.createProject(t, data)
	second := h.createProject(t, testProjectData())
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), second)

	p := h.project(t, first)
	require.Equal(t, testOwner, p.Owner)
	require.Equal(t, testToken, p.ExchangeToken)
	require.Equal(t, "MyProject", p.Name)
	require.Equal(t, "MyAsso", p.AssoName)
	require.Equal(t, []string{"TeamMember1", "TeamMember2"}, p.TeamMembers)
	require.Equal(t, int64(300_000), p.RequiredAmount.Int64())
	require.Zero(t, p.CurrentAmount.Sign())
	require.Zero(t, p.AvailableToWithdraw.Sign())
	require.Equal(t, uint64(3), p.NbOfThresholds)
	require.Zero(t, p.CurrentThreshold)
	require.True(t, p.IsActive)
	require.Equal(t, int64(1_700_000_000), p.CreatedAt)

	thresholds, err := h.engine.Thresholds(first)
	require.NoError(t, err)
	require.Len(t, thresholds, 3)
	for i, budget := range testBudgets() {
		require.Equal(t, 0, thresholds[i].Budget.Cmp(budget))
		require.False(t, thresholds[i].VoteSession.IsVotingInSession)
	}

	created := h.emitter.ofType(EventTypeProjectCreated)
	require.Len(t, created, 2)
	require.Equal(t, "0", created[0].Attributes["projectId"])
	require.Equal(t, "3", created[0].Attributes["thresholds"])
}

func TestProjectAccessorsRejectUnknownIds(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())

	_, err := h.engine.Project(id + 1)
	require.ErrorIs(t, err, ErrInvalidProjectId)
	_, err = h.engine.Threshold(id+1, 0)
	require.ErrorIs(t, err, ErrInvalidProjectId)
	_, err = h.engine.Threshold(id, 3)
	require.ErrorIs(t, err, ErrInvalidThresholdId)
	_, err = h.engine.Donation(testDonor, id+1)
	require.ErrorIs(t, err, ErrInvalidProjectId)
	_, err = h.engine.Ballot(testDonor, id, 3)
	require.ErrorIs(t, err, ErrInvalidThresholdId)
	_, err = h.engine.HasVoted(testDonor, id+1, 0)
	require.ErrorIs(t, err, ErrInvalidProjectId)
}

func TestProjectCopiesDoNotAliasState(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())
	p := h.project(t, id)
	p.RequiredAmount.SetInt64(1)
	p.TeamMembers[0] = "changed"
	again := h.project(t, id)
	require.Equal(t, int64(300_000), again.RequiredAmount.Int64())
	require.Equal(t, "TeamMember1", again.TeamMembers[0])
}

func TestUpdaterSettersAndEvents(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())

	require.NoError(t, h.engine.UpdateStatus(testUpdater, id, false))
	require.False(t, h.project(t, id).IsActive)
	require.NoError(t, h.engine.UpdateVoteCooldown(testUpdater, id, 3600))
	require.Equal(t, uint64(3600), h.project(t, id).VoteCooldown)
	require.NoError(t, h.engine.SetDonationFee(testUpdater, id, 1000))
	require.Equal(t, uint32(1000), h.project(t, id).DonationFeeBps)

	require.ErrorIs(t, h.engine.SetDonationFee(testUpdater, id, 10_001), ErrCantGoAbove10000)
	require.ErrorIs(t, h.engine.UpdateStatus(testUpdater, id+5, true), ErrInvalidProjectId)
	require.ErrorIs(t, h.engine.UpdateVoteCooldown(testUpdater, id+5, 1), ErrInvalidProjectId)
	require.ErrorIs(t, h.engine.SetDonationFee(testUpdater, id+5, 1), ErrInvalidProjectId)

	for _, err := range []error{
		h.engine.UpdateStatus(testStranger, id, true),
		h.engine.UpdateVoteCooldown(testStranger, id, 1),
		h.engine.SetDonationFee(testStranger, id, 1),
	} {
		require.True(t, access.IsMissingRole(err))
	}

	status := h.emitter.ofType(EventTypeProjectStatusUpdated)
	require.Len(t, status, 1)
	require.Equal(t, "false", status[0].Attributes["active"])
	require.Len(t, h.emitter.ofType(EventTypeProjectCooldownUpdated), 1)
	fee := h.emitter.ofType(EventTypeProjectFeeUpdated)
	require.Len(t, fee, 1)
	require.Equal(t, "1000", fee[0].Attributes["feeBps"])
}

func TestProjectsPaging(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.createProject(t, testProjectData())
	}
	page, err := h.engine.Projects(1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, uint64(1), page[0].ID)
	require.Equal(t, uint64(2), page[1].ID)

	tail, err := h.engine.Projects(4, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)

	empty, err := h.engine.Projects(5, 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSanitizeTextNormalizes(t *testing.T) {
	require.Equal(t, "Caf\u00e9", sanitizeText("  Cafe\u0301 "))
	require.Equal(t, []string{"Jos\u00e9", "Ana"}, sanitizeMembers([]string{"Jose\u0301", " ", " Ana"}))
}
