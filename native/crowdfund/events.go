package crowdfund

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"fundchain/core/types"
)

const (
	EventTypeTokenAdded             = "crowdfund.token.added"
	EventTypeProjectCreated         = "crowdfund.project.created"
	EventTypeProjectStatusUpdated   = "crowdfund.project.status_updated"
	EventTypeProjectCooldownUpdated = "crowdfund.project.cooldown_updated"
	EventTypeProjectFeeUpdated      = "crowdfund.project.fee_updated"
	EventTypeDonationRecorded       = "crowdfund.donation.recorded"
	EventTypeVoteSessionStarted     = "crowdfund.vote.session_started"
	EventTypeVoteCast               = "crowdfund.vote.cast"
	EventTypeVoteDeliberated        = "crowdfund.vote.deliberated"
	EventTypeFundsWithdrawn         = "crowdfund.funds.withdrawn"
	EventTypeFeesWithdrawn          = "crowdfund.fees.withdrawn"
	EventTypeFundsTransferred       = "crowdfund.funds.transferred"
)

// EventTypes lists every event type emitted by the module.
func EventTypes() []string {
	return []string{
		EventTypeTokenAdded,
		EventTypeProjectCreated,
		EventTypeProjectStatusUpdated,
		EventTypeProjectCooldownUpdated,
		EventTypeProjectFeeUpdated,
		EventTypeDonationRecorded,
		EventTypeVoteSessionStarted,
		EventTypeVoteCast,
		EventTypeVoteDeliberated,
		EventTypeFundsWithdrawn,
		EventTypeFeesWithdrawn,
		EventTypeFundsTransferred,
	}
}

// NewTokenAddedEvent marks a token entering the supported set.
func NewTokenAddedEvent(token [20]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeTokenAdded,
		Attributes: map[string]string{"token": hex.EncodeToString(token[:])},
	}
}

// NewProjectCreatedEvent returns the canonical payload for a new project.
func NewProjectCreatedEvent(p *Project) *types.Event {
	evt := newProjectEvent(EventTypeProjectCreated, p)
	if p != nil {
		evt.Attributes["owner"] = hex.EncodeToString(p.Owner[:])
		evt.Attributes["token"] = hex.EncodeToString(p.ExchangeToken[:])
		evt.Attributes["name"] = p.Name
		evt.Attributes["requiredAmount"] = amountString(p.RequiredAmount)
		evt.Attributes["thresholds"] = strconv.FormatUint(p.NbOfThresholds, 10)
		evt.Attributes["requiredVoteBps"] = strconv.FormatUint(uint64(p.RequiredVotePercentage), 10)
		evt.Attributes["feeBps"] = strconv.FormatUint(uint64(p.DonationFeeBps), 10)
	}
	return evt
}

// NewStatusUpdatedEvent is emitted when a project is activated or deactivated.
func NewStatusUpdatedEvent(p *Project) *types.Event {
	evt := newProjectEvent(EventTypeProjectStatusUpdated, p)
	if p != nil {
		evt.Attributes["active"] = strconv.FormatBool(p.IsActive)
	}
	return evt
}

// NewCooldownUpdatedEvent is emitted when the vote cooldown changes.
func NewCooldownUpdatedEvent(p *Project) *types.Event {
	evt := newProjectEvent(EventTypeProjectCooldownUpdated, p)
	if p != nil {
		evt.Attributes["voteCooldown"] = strconv.FormatUint(p.VoteCooldown, 10)
	}
	return evt
}

// NewFeeUpdatedEvent is emitted when the donation fee changes.
func NewFeeUpdatedEvent(p *Project) *types.Event {
	evt := newProjectEvent(EventTypeProjectFeeUpdated, p)
	if p != nil {
		evt.Attributes["feeBps"] = strconv.FormatUint(uint64(p.DonationFeeBps), 10)
	}
	return evt
}

// NewDonationRecordedEvent describes an accepted donation.
func NewDonationRecordedEvent(p *Project, donor [20]byte, gross, fee, net *big.Int) *types.Event {
	evt := newProjectEvent(EventTypeDonationRecorded, p)
	evt.Attributes["donor"] = hex.EncodeToString(donor[:])
	evt.Attributes["gross"] = amountString(gross)
	evt.Attributes["fee"] = amountString(fee)
	evt.Attributes["net"] = amountString(net)
	if p != nil {
		evt.Attributes["token"] = hex.EncodeToString(p.ExchangeToken[:])
		evt.Attributes["currentAmount"] = amountString(p.CurrentAmount)
	}
	return evt
}

// NewSessionStartedEvent is emitted when a threshold enters deliberation.
func NewSessionStartedEvent(p *Project, index uint64, cumulative *big.Int) *types.Event {
	evt := newProjectEvent(EventTypeVoteSessionStarted, p)
	evt.Attributes["threshold"] = strconv.FormatUint(index, 10)
	evt.Attributes["cumulativeBudget"] = amountString(cumulative)
	return evt
}

// NewVoteCastEvent records a donor ballot.
func NewVoteCastEvent(p *Project, voter [20]byte, index uint64, choice bool) *types.Event {
	evt := newProjectEvent(EventTypeVoteCast, p)
	evt.Attributes["voter"] = hex.EncodeToString(voter[:])
	evt.Attributes["threshold"] = strconv.FormatUint(index, 10)
	evt.Attributes["choice"] = strconv.FormatBool(choice)
	return evt
}

// NewDeliberatedEvent reports the outcome of a closed vote session.
func NewDeliberatedEvent(o Outcome) *types.Event {
	attrs := map[string]string{
		"projectId": strconv.FormatUint(o.ProjectID, 10),
		"threshold": strconv.FormatUint(o.ThresholdIndex, 10),
		"positive":  strconv.FormatUint(o.PositiveVotes, 10),
		"negative":  strconv.FormatUint(o.NegativeVotes, 10),
		"ratioBps":  strconv.FormatUint(o.RatioBps, 10),
		"passed":    strconv.FormatBool(o.Passed),
	}
	if o.Released != nil && o.Released.Sign() > 0 {
		attrs["released"] = o.Released.String()
	}
	return &types.Event{Type: EventTypeVoteDeliberated, Attributes: attrs}
}

// NewFundsWithdrawnEvent records a release to the project owner.
func NewFundsWithdrawnEvent(p *Project, amount *big.Int) *types.Event {
	evt := newProjectEvent(EventTypeFundsWithdrawn, p)
	evt.Attributes["amount"] = amountString(amount)
	if p != nil {
		evt.Attributes["owner"] = hex.EncodeToString(p.Owner[:])
		evt.Attributes["token"] = hex.EncodeToString(p.ExchangeToken[:])
	}
	return evt
}

// NewFeesWithdrawnEvent records a fee pool sweep.
func NewFeesWithdrawnEvent(token, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFeesWithdrawn,
		Attributes: map[string]string{
			"token":     hex.EncodeToString(token[:]),
			"recipient": hex.EncodeToString(recipient[:]),
			"amount":    amountString(amount),
		},
	}
}

// NewFundsTransferredEvent records a cross-project transfer.
func NewFundsTransferredEvent(from, to *Project, amount *big.Int) *types.Event {
	attrs := map[string]string{"amount": amountString(amount)}
	if from != nil {
		attrs["fromProjectId"] = strconv.FormatUint(from.ID, 10)
		attrs["projectId"] = strconv.FormatUint(from.ID, 10)
	}
	if to != nil {
		attrs["toProjectId"] = strconv.FormatUint(to.ID, 10)
	}
	return &types.Event{Type: EventTypeFundsTransferred, Attributes: attrs}
}

func newProjectEvent(eventType string, p *Project) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["projectId"] = strconv.FormatUint(p.ID, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
