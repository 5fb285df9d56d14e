package crowdfund

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/native/common"
)

func TestDonateValidationOrder(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())
	h.fund(testDonor, 1_000_000)

	require.ErrorIs(t, h.engine.Donate(testDonor, id+1, big.NewInt(0)), ErrInvalidProjectId)
	require.ErrorIs(t, h.engine.Donate(testDonor, id, big.NewInt(0)), ErrZeroAmount)
	require.ErrorIs(t, h.engine.Donate(testDonor, id, nil), ErrZeroAmount)

	require.NoError(t, h.engine.UpdateStatus(testUpdater, id, false))
	require.ErrorIs(t, h.engine.Donate(testDonor, id, big.NewInt(5000)), ErrProjectNotActive)
	require.NoError(t, h.engine.UpdateStatus(testUpdater, id, true))

	require.ErrorIs(t, h.engine.Donate(testDonor, id, big.NewInt(5000)), ErrAmountTooSmall)
	require.ErrorIs(t, h.engine.Donate(testDonor2, id, big.NewInt(20_000)), ErrAllowanceNotApproved)

	require.Empty(t, h.emitter.ofType(EventTypeDonationRecorded))
	p := h.project(t, id)
	require.Zero(t, p.CurrentAmount.Sign())
}

func TestDonateRejectsZeroNetCredit(t *testing.T) {
	h := newHarness(t)
	data := testProjectData()
	data.DonationFeeBps = BasisPointsDenominator
	id := h.createProject(t, data)
	h.fund(testDonor, 20_000)
	require.ErrorIs(t, h.engine.Donate(testDonor, id, big.NewInt(20_000)), ErrAmountTooSmall)
}

func TestDonateHonoursConfiguredMinimum(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())
	h.engine.SetMinDonation(big.NewInt(1))
	h.donate(t, testDonor, id, 5000)
	require.Equal(t, int64(5000), h.project(t, id).CurrentAmount.Int64())
}

func TestDonateWhilePaused(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())
	h.fund(testDonor, 20_000)
	h.pauses.paused = true
	require.ErrorIs(t, h.engine.Donate(testDonor, id, big.NewInt(20_000)), common.ErrModulePaused)
}

func TestDonateSplitsFee(t *testing.T) {
	h := newHarness(t)
	data := testProjectData()
	data.DonationFeeBps = 1000
	id := h.createProject(t, data)

	h.donate(t, testDonor, id, 100_000)

	p := h.project(t, id)
	require.Equal(t, int64(90_000), p.CurrentAmount.Int64())
	require.Zero(t, p.AvailableToWithdraw.Sign())

	fees, err := h.engine.FeesAvailable(testToken)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), fees.Int64())

	donated, err := h.engine.Donation(testDonor, id)
	require.NoError(t, err)
	require.Equal(t, int64(100_000), donated.Int64())

	isDonor, err := h.engine.IsDonator(testDonor, id)
	require.NoError(t, err)
	require.True(t, isDonor)
	isDonor, err = h.engine.IsDonator(testDonor2, id)
	require.NoError(t, err)
	require.False(t, isDonor)

	require.Zero(t, h.ledger.balance(testToken, testDonor).Sign())
	require.Equal(t, int64(100_000), h.ledger.balance(testToken, h.engine.Vault()).Int64())

	recorded := h.emitter.ofType(EventTypeDonationRecorded)
	require.Len(t, recorded, 1)
	require.Equal(t, "100000", recorded[0].Attributes["gross"])
	require.Equal(t, "10000", recorded[0].Attributes["fee"])
	require.Equal(t, "90000", recorded[0].Attributes["net"])
}

func TestFeePlusNetEqualsGross(t *testing.T) {
	for _, bps := range []uint32{0, 1, 250, 3333, 9999, 10_000} {
		for _, gross := range []int64{10_000, 10_001, 123_457, 999_999_999} {
			fee, net := splitFee(big.NewInt(gross), bps)
			require.Equal(t, gross, new(big.Int).Add(fee, net).Int64())
			require.True(t, fee.Sign() >= 0 && net.Sign() >= 0)
		}
	}
}

func TestDonateOpensSessionWhenCumulativeBudgetReached(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())

	h.donate(t, testDonor, id, 40_000)
	require.False(t, h.threshold(t, id, 0).VoteSession.IsVotingInSession)
	require.Empty(t, h.emitter.ofType(EventTypeVoteSessionStarted))

	h.donate(t, testDonor2, id, 10_000)
	require.True(t, h.threshold(t, id, 0).VoteSession.IsVotingInSession)
	started := h.emitter.ofType(EventTypeVoteSessionStarted)
	require.Len(t, started, 1)
	require.Equal(t, "0", started[0].Attributes["threshold"])
	require.Equal(t, "50000", started[0].Attributes["cumulativeBudget"])

	h.donate(t, testDonor3, id, 10_000)
	require.Len(t, h.emitter.ofType(EventTypeVoteSessionStarted), 1)
	require.Len(t, h.emitter.ofType(EventTypeDonationRecorded), 3)
}

func TestDonateAccumulatesPerDonor(t *testing.T) {
	h := newHarness(t)
	id := h.createProject(t, testProjectData())
	h.donate(t, testDonor, id, 10_000)
	h.donate(t, testDonor, id, 15_000)
	donated, err := h.engine.Donation(testDonor, id)
	require.NoError(t, err)
	require.Equal(t, int64(25_000), donated.Int64())
	require.Equal(t, int64(25_000), h.project(t, id).CurrentAmount.Int64())
}

func TestDonateAfterAllThresholdsPassedReleasesDirectly(t *testing.T) {
	h := newHarness(t)
	data := testProjectData()
	data.DonationFeeBps = 1000
	id, err := h.engine.CreateProject(testUpdater, data, []*big.Int{big.NewInt(50_000)})
	require.NoError(t, err)

	h.donate(t, testDonor, id, 100_000)
	require.NoError(t, h.engine.Vote(testDonor, id, true))
	outcome, err := h.engine.EndVoting(testUpdater, id)
	require.NoError(t, err)
	require.True(t, outcome.Passed)

	p := h.project(t, id)
	require.True(t, p.AllThresholdsPassed())
	require.Equal(t, int64(50_000), p.AvailableToWithdraw.Int64())

	h.donate(t, testDonor2, id, 100_000)
	p = h.project(t, id)
	require.Equal(t, int64(140_000), p.AvailableToWithdraw.Int64())
	require.Equal(t, int64(180_000), p.CurrentAmount.Int64())
}
