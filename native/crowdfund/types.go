package crowdfund

import (
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// BasisPointsDenominator is the scale used for vote percentages and donation
// fees. 10_000 basis points represent 100%.
const BasisPointsDenominator = 10_000

// ModuleName identifies the crowdfunding module for pause checks.
const ModuleName = "crowdfund"

// VoteSession tallies the ballots cast while a threshold is being deliberated.
type VoteSession struct {
	IsVotingInSession bool
	PositiveVotes     uint64
	NegativeVotes     uint64
}

// Threshold is a funding tranche released to the owner once donors approve it.
type Threshold struct {
	Budget      *big.Int
	VoteSession VoteSession
}

// Clone returns a deep copy of the threshold.
func (t *Threshold) Clone() *Threshold {
	if t == nil {
		return nil
	}
	out := *t
	out.Budget = cloneBigInt(t.Budget)
	return &out
}

// ProjectData carries the caller supplied fields for a new project.
type ProjectData struct {
	Owner                  [20]byte
	ExchangeToken          [20]byte
	Name                   string
	AssoName               string
	Description            string
	TeamMembers            []string
	RequiredAmount         *big.Int
	RequiredVotePercentage uint32
	DonationFeeBps         uint32
	VoteCooldown           uint64
}

// Project is a funding campaign with an ordered list of thresholds.
type Project struct {
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
	// VoteCooldown is configurable but no operation gates on it.
	VoteCooldown uint64
	IsActive     bool
	CreatedAt    int64
	UpdatedAt    int64
}

// Clone returns a deep copy of the project to avoid aliasing state.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := *p
	out.TeamMembers = append([]string(nil), p.TeamMembers...)
	out.RequiredAmount = cloneBigInt(p.RequiredAmount)
	out.CurrentAmount = cloneBigInt(p.CurrentAmount)
	out.AvailableToWithdraw = cloneBigInt(p.AvailableToWithdraw)
	return &out
}

// AllThresholdsPassed reports whether every tranche has been approved.
func (p *Project) AllThresholdsPassed() bool {
	return p != nil && p.CurrentThreshold >= p.NbOfThresholds
}

// Ballot is a recorded vote on one threshold of a project.
type Ballot struct {
	Voted  bool
	Choice bool
}

// Outcome summarises a closed vote session.
type Outcome struct {
	ProjectID      uint64
	ThresholdIndex uint64
	PositiveVotes  uint64
	NegativeVotes  uint64
	RatioBps       uint64
	Passed         bool
	Released       *big.Int
}

// sanitizeText trims and NFC-normalizes free text so equivalent spellings
// hash to the same state.
func sanitizeText(v string) string { return norm.NFC.String(strings.TrimSpace(v)) }

func sanitizeMembers(members []string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		if trimmed := sanitizeText(m); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool { return addr == [20]byte{} }
