package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"fundchain/crypto"
	"fundchain/native/crowdfund"
)

// Amount is a non-negative integer that decodes from a JSON string or
// number and always encodes as a decimal string.
type Amount struct{ big.Int }

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		return fmt.Errorf("%w: empty amount", errBadRequest)
	}
	if _, ok := a.Int.SetString(raw, 10); !ok {
		return fmt.Errorf("%w: invalid amount %q", errBadRequest, raw)
	}
	if a.Int.Sign() < 0 {
		return fmt.Errorf("%w: negative amount %q", errBadRequest, raw)
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Int.String())
}

// BigInt returns a copy of the amount, or nil for a nil receiver.
func (a *Amount) BigInt() *big.Int {
	if a == nil {
		return nil
	}
	return new(big.Int).Set(&a.Int)
}

func amountOf(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Account decodes a fund bech32 address or 0x hex account.
type Account [20]byte

func (a *Account) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: account must be a string", errBadRequest)
	}
	parsed, err := crypto.ParseAccount(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	*a = parsed
	return nil
}

func (a Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(crypto.FormatAccount(a))
}

type projectRequest struct {
	Owner                  Account  `json:"owner"`
	ExchangeToken          Account  `json:"exchangeToken"`
	Name                   string   `json:"name"`
	AssoName               string   `json:"assoName"`
	Description            string   `json:"description"`
	TeamMembers            []string `json:"teamMembers"`
	RequiredAmount         Amount   `json:"requiredAmount"`
	RequiredVotePercentage uint32   `json:"requiredVotePercentage"`
	DonationFeeBps         uint32   `json:"donationFeeBps"`
	VoteCooldown           uint64   `json:"voteCooldown"`
	Budgets                []Amount `json:"thresholdBudgets"`
}

func (p projectRequest) data() (crowdfund.ProjectData, []*big.Int) {
	budgets := make([]*big.Int, len(p.Budgets))
	for i := range p.Budgets {
		budgets[i] = p.Budgets[i].BigInt()
	}
	return crowdfund.ProjectData{
		Owner:                  p.Owner,
		ExchangeToken:          p.ExchangeToken,
		Name:                   p.Name,
		AssoName:               p.AssoName,
		Description:            p.Description,
		TeamMembers:            p.TeamMembers,
		RequiredAmount:         p.RequiredAmount.BigInt(),
		RequiredVotePercentage: p.RequiredVotePercentage,
		DonationFeeBps:         p.DonationFeeBps,
		VoteCooldown:           p.VoteCooldown,
	}, budgets
}

// ProjectView is the JSON rendering of a project.
type ProjectView struct {
	ID                     uint64   `json:"id"`
	Owner                  Account  `json:"owner"`
	ExchangeToken          Account  `json:"exchangeToken"`
	Name                   string   `json:"name"`
	AssoName               string   `json:"assoName"`
	Description            string   `json:"description"`
	TeamMembers            []string `json:"teamMembers"`
	RequiredAmount         string   `json:"requiredAmount"`
	CurrentAmount          string   `json:"currentAmount"`
	AvailableToWithdraw    string   `json:"availableToWithdraw"`
	CurrentThreshold       uint64   `json:"currentThreshold"`
	NbOfThresholds         uint64   `json:"nbOfThresholds"`
	RequiredVotePercentage uint32   `json:"requiredVotePercentage"`
	DonationFeeBps         uint32   `json:"donationFeeBps"`
	VoteCooldown           uint64   `json:"voteCooldown"`
	IsActive               bool     `json:"isActive"`
	CreatedAt              int64    `json:"createdAt"`
	UpdatedAt              int64    `json:"updatedAt"`
}

func projectView(p *crowdfund.Project) ProjectView {
	members := p.TeamMembers
	if members == nil {
		members = []string{}
	}
	return ProjectView{
		ID:                     p.ID,
		Owner:                  p.Owner,
		ExchangeToken:          p.ExchangeToken,
		Name:                   p.Name,
		AssoName:               p.AssoName,
		Description:            p.Description,
		TeamMembers:            members,
		RequiredAmount:         amountOf(p.RequiredAmount),
		CurrentAmount:          amountOf(p.CurrentAmount),
		AvailableToWithdraw:    amountOf(p.AvailableToWithdraw),
		CurrentThreshold:       p.CurrentThreshold,
		NbOfThresholds:         p.NbOfThresholds,
		RequiredVotePercentage: p.RequiredVotePercentage,
		DonationFeeBps:         p.DonationFeeBps,
		VoteCooldown:           p.VoteCooldown,
		IsActive:               p.IsActive,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

// ThresholdView is the JSON rendering of a threshold and its vote session.
type ThresholdView struct {
	Index             uint64 `json:"index"`
	Budget            string `json:"budget"`
	IsVotingInSession bool   `json:"isVotingInSession"`
	PositiveVotes     uint64 `json:"positiveVotes"`
	NegativeVotes     uint64 `json:"negativeVotes"`
}

func thresholdView(index uint64, t *crowdfund.Threshold) ThresholdView {
	return ThresholdView{
		Index:             index,
		Budget:            amountOf(t.Budget),
		IsVotingInSession: t.VoteSession.IsVotingInSession,
		PositiveVotes:     t.VoteSession.PositiveVotes,
		NegativeVotes:     t.VoteSession.NegativeVotes,
	}
}

// OutcomeView is the JSON rendering of a closed vote session.
type OutcomeView struct {
	ProjectID      uint64 `json:"projectId"`
	ThresholdIndex uint64 `json:"thresholdIndex"`
	PositiveVotes  uint64 `json:"positiveVotes"`
	NegativeVotes  uint64 `json:"negativeVotes"`
	RatioBps       uint64 `json:"ratioBps"`
	Passed         bool   `json:"passed"`
	Released       string `json:"released"`
}

func outcomeView(o crowdfund.Outcome) OutcomeView {
	return OutcomeView{
		ProjectID:      o.ProjectID,
		ThresholdIndex: o.ThresholdIndex,
		PositiveVotes:  o.PositiveVotes,
		NegativeVotes:  o.NegativeVotes,
		RatioBps:       o.RatioBps,
		Passed:         o.Passed,
		Released:       amountOf(o.Released),
	}
}

// CallResult is returned by every mutating route.
type CallResult struct {
	Root   string      `json:"root"`
	Events []EventView `json:"events"`
	Result interface{} `json:"result,omitempty"`
}

// EventView is a committed event as rendered over HTTP and the stream.
type EventView struct {
	Sequence   uint64            `json:"sequence"`
	Root       string            `json:"root"`
	Call       string            `json:"call"`
	Timestamp  string            `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
