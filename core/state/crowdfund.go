package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"fundchain/native/crowdfund"
)

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func crowdfundProjectKey(id uint64) []byte {
	return prefixedKey(crowdfundProjectPrefix, uint64Bytes(id))
}

func crowdfundThresholdKey(projectID, index uint64) []byte {
	return prefixedKey(crowdfundThresholdPrefix, uint64Bytes(projectID), uint64Bytes(index))
}

func crowdfundDonationKey(donor [20]byte, projectID uint64) []byte {
	return prefixedKey(crowdfundDonationPrefix, donor[:], uint64Bytes(projectID))
}

func crowdfundBallotKey(voter [20]byte, projectID, index uint64) []byte {
	return prefixedKey(crowdfundBallotPrefix, voter[:], uint64Bytes(projectID), uint64Bytes(index))
}

type storedProject struct {
	ID                     uint64
	Owner                  [20]byte
	ExchangeToken          [20]byte
	Name                   string
	AssoName               string
	Description            string
	TeamMembers            []string
	RequiredAmount         *big.Int
	CurrentAmount          *big.Int
	AvailableToWithdraw    *big.Int
	CurrentThreshold       uint64
	NbOfThresholds         uint64
	RequiredVotePercentage uint32
	DonationFeeBps         uint32
	VoteCooldown           uint64
	IsActive               bool
	CreatedAt              uint64
	UpdatedAt              uint64
}

func newStoredProject(p *crowdfund.Project) *storedProject {
	return &storedProject{
		ID:                     p.ID,
		Owner:                  p.Owner,
		ExchangeToken:          p.ExchangeToken,
		Name:                   p.Name,
		AssoName:               p.AssoName,
		Description:            p.Description,
		TeamMembers:            append([]string{}, p.TeamMembers...),
		RequiredAmount:         nonNilBig(p.RequiredAmount),
		CurrentAmount:          nonNilBig(p.CurrentAmount),
		AvailableToWithdraw:    nonNilBig(p.AvailableToWithdraw),
		CurrentThreshold:       p.CurrentThreshold,
		NbOfThresholds:         p.NbOfThresholds,
		RequiredVotePercentage: p.RequiredVotePercentage,
		DonationFeeBps:         p.DonationFeeBps,
		VoteCooldown:           p.VoteCooldown,
		IsActive:               p.IsActive,
		CreatedAt:              clampUnix(p.CreatedAt),
		UpdatedAt:              clampUnix(p.UpdatedAt),
	}
}

func (s *storedProject) toProject() *crowdfund.Project {
	return &crowdfund.Project{
		ID:                     s.ID,
		Owner:                  s.Owner,
		ExchangeToken:          s.ExchangeToken,
		Name:                   s.Name,
		AssoName:               s.AssoName,
		Description:            s.Description,
		TeamMembers:            append([]string{}, s.TeamMembers...),
		RequiredAmount:         nonNilBig(s.RequiredAmount),
		CurrentAmount:          nonNilBig(s.CurrentAmount),
		AvailableToWithdraw:    nonNilBig(s.AvailableToWithdraw),
		CurrentThreshold:       s.CurrentThreshold,
		NbOfThresholds:         s.NbOfThresholds,
		RequiredVotePercentage: s.RequiredVotePercentage,
		DonationFeeBps:         s.DonationFeeBps,
		VoteCooldown:           s.VoteCooldown,
		IsActive:               s.IsActive,
		CreatedAt:              int64(s.CreatedAt),
		UpdatedAt:              int64(s.UpdatedAt),
	}
}

type storedThreshold struct {
	Budget            *big.Int
	IsVotingInSession bool
	PositiveVotes     uint64
	NegativeVotes     uint64
}

type storedBallot struct {
	Voted  bool
	Choice bool
}

func (m *Manager) CrowdfundTokenSupported(token [20]byte) (bool, error) {
	var supported bool
	if _, err := m.get(prefixedKey(crowdfundTokenPrefix, token[:]), &supported); err != nil {
		return false, err
	}
	return supported, nil
}

func (m *Manager) CrowdfundAddToken(token [20]byte) error {
	supported, err := m.CrowdfundTokenSupported(token)
	if err != nil {
		return err
	}
	if supported {
		return nil
	}
	if err := m.put(prefixedKey(crowdfundTokenPrefix, token[:]), true); err != nil {
		return err
	}
	list, err := m.CrowdfundTokens()
	if err != nil {
		return err
	}
	return m.KVPut(crowdfundTokenListKey, append(list, token))
}

// CrowdfundTokens lists supported tokens in insertion order.
func (m *Manager) CrowdfundTokens() ([][20]byte, error) {
	var list [][20]byte
	if err := m.KVGetList(crowdfundTokenListKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) CrowdfundProjectCount() (uint64, error) {
	return m.loadUint64(crowdfundProjectCountKey)
}

func (m *Manager) CrowdfundSetProjectCount(count uint64) error {
	return m.KVPut(crowdfundProjectCountKey, count)
}

func (m *Manager) CrowdfundPutProject(p *crowdfund.Project) error {
	if p == nil {
		return fmt.Errorf("crowdfund: nil project")
	}
	return m.put(crowdfundProjectKey(p.ID), newStoredProject(p))
}

func (m *Manager) CrowdfundGetProject(id uint64) (*crowdfund.Project, bool, error) {
	stored := new(storedProject)
	ok, err := m.get(crowdfundProjectKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toProject(), true, nil
}

func (m *Manager) CrowdfundPutThreshold(projectID, index uint64, t *crowdfund.Threshold) error {
	if t == nil {
		return fmt.Errorf("crowdfund: nil threshold")
	}
	return m.put(crowdfundThresholdKey(projectID, index), &storedThreshold{
		Budget:            nonNilBig(t.Budget),
		IsVotingInSession: t.VoteSession.IsVotingInSession,
		PositiveVotes:     t.VoteSession.PositiveVotes,
		NegativeVotes:     t.VoteSession.NegativeVotes,
	})
}

func (m *Manager) CrowdfundGetThreshold(projectID, index uint64) (*crowdfund.Threshold, bool, error) {
	stored := new(storedThreshold)
	ok, err := m.get(crowdfundThresholdKey(projectID, index), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &crowdfund.Threshold{
		Budget: nonNilBig(stored.Budget),
		VoteSession: crowdfund.VoteSession{
			IsVotingInSession: stored.IsVotingInSession,
			PositiveVotes:     stored.PositiveVotes,
			NegativeVotes:     stored.NegativeVotes,
		},
	}, true, nil
}

func (m *Manager) CrowdfundDonation(donor [20]byte, projectID uint64) (*big.Int, error) {
	return m.loadBigInt(crowdfundDonationKey(donor, projectID))
}

func (m *Manager) CrowdfundSetDonation(donor [20]byte, projectID uint64, amount *big.Int) error {
	return m.writeBigInt(crowdfundDonationKey(donor, projectID), amount)
}

func (m *Manager) CrowdfundBallot(voter [20]byte, projectID, index uint64) (crowdfund.Ballot, error) {
	var stored storedBallot
	if _, err := m.get(crowdfundBallotKey(voter, projectID, index), &stored); err != nil {
		return crowdfund.Ballot{}, err
	}
	return crowdfund.Ballot{Voted: stored.Voted, Choice: stored.Choice}, nil
}

func (m *Manager) CrowdfundPutBallot(voter [20]byte, projectID, index uint64, b crowdfund.Ballot) error {
	return m.put(crowdfundBallotKey(voter, projectID, index), &storedBallot{Voted: b.Voted, Choice: b.Choice})
}

func (m *Manager) CrowdfundFeePool(token [20]byte) (*big.Int, error) {
	return m.loadBigInt(prefixedKey(crowdfundFeePoolPrefix, token[:]))
}

func (m *Manager) CrowdfundSetFeePool(token [20]byte, amount *big.Int) error {
	return m.writeBigInt(prefixedKey(crowdfundFeePoolPrefix, token[:]), amount)
}

func nonNilBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func clampUnix(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}
