package crowdfund

import (
	"fmt"
	"math/big"
)

// Donate pulls gross units of the project's exchange token from the caller,
// deducts the donation fee and credits the net amount to the project. When the
// project's cumulative funding covers the current threshold's cumulative
// budget, that threshold's vote session opens.
func (e *Engine) Donate(caller [20]byte, projectID uint64, gross *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	if e.ledger == nil {
		return errNilLedger
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return err
	}
	if gross == nil || gross.Sign() <= 0 {
		return ErrZeroAmount
	}
	if !project.IsActive {
		return ErrProjectNotActive
	}
	fee, net := splitFee(gross, project.DonationFeeBps)
	if gross.Cmp(e.minDonation) < 0 || net.Sign() == 0 {
		return fmt.Errorf("%w: %s below minimum %s", ErrAmountTooSmall, gross, e.minDonation)
	}
	allowance, err := e.ledger.Allowance(project.ExchangeToken, caller, e.vault)
	if err != nil {
		return err
	}
	if allowance == nil || allowance.Cmp(gross) < 0 {
		return ErrAllowanceNotApproved
	}
	if err := e.ledger.TransferFrom(project.ExchangeToken, e.vault, caller, e.vault, gross); err != nil {
		return fmt.Errorf("crowdfund: pull donation: %w", err)
	}

	pool, err := e.state.CrowdfundFeePool(project.ExchangeToken)
	if err != nil {
		return err
	}
	if err := e.state.CrowdfundSetFeePool(project.ExchangeToken, new(big.Int).Add(pool, fee)); err != nil {
		return err
	}
	donated, err := e.state.CrowdfundDonation(caller, projectID)
	if err != nil {
		return err
	}
	if err := e.state.CrowdfundSetDonation(caller, projectID, new(big.Int).Add(donated, gross)); err != nil {
		return err
	}

	project.CurrentAmount = new(big.Int).Add(project.CurrentAmount, net)
	var opened *sessionOpening
	if project.AllThresholdsPassed() {
		project.AvailableToWithdraw = new(big.Int).Add(project.AvailableToWithdraw, net)
	} else {
		opened, err = e.maybeOpenSession(project)
		if err != nil {
			return err
		}
	}
	if err := e.storeProject(project); err != nil {
		return err
	}

	e.emit(NewDonationRecordedEvent(project, caller, gross, fee, net))
	if opened != nil {
		e.emit(NewSessionStartedEvent(project, opened.index, opened.cumulative))
	}
	return nil
}

// Donation returns the cumulative gross amount donor gave to the project.
func (e *Engine) Donation(donor [20]byte, projectID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadProject(projectID); err != nil {
		return nil, err
	}
	amount, err := e.state.CrowdfundDonation(donor, projectID)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(amount), nil
}

// IsDonator reports whether donor has a positive donation record for the
// project.
func (e *Engine) IsDonator(donor [20]byte, projectID uint64) (bool, error) {
	amount, err := e.Donation(donor, projectID)
	if err != nil {
		return false, err
	}
	return amount.Sign() > 0, nil
}

type sessionOpening struct {
	index      uint64
	cumulative *big.Int
}

// maybeOpenSession opens the vote session of the project's current threshold
// when funding covers the cumulative budget up to and including it. It opens
// at most one session.
func (e *Engine) maybeOpenSession(project *Project) (*sessionOpening, error) {
	if project.AllThresholdsPassed() {
		return nil, nil
	}
	index := project.CurrentThreshold
	threshold, err := e.loadThreshold(project.ID, index)
	if err != nil {
		return nil, err
	}
	if threshold.VoteSession.IsVotingInSession {
		return nil, nil
	}
	cumulative, err := e.cumulativeBudget(project.ID, index)
	if err != nil {
		return nil, err
	}
	if project.CurrentAmount.Cmp(cumulative) < 0 {
		return nil, nil
	}
	threshold.VoteSession = VoteSession{IsVotingInSession: true}
	if err := e.state.CrowdfundPutThreshold(project.ID, index, threshold); err != nil {
		return nil, err
	}
	return &sessionOpening{index: index, cumulative: cumulative}, nil
}

// splitFee returns fee = gross*bps/10000 and net = gross-fee.
func splitFee(gross *big.Int, bps uint32) (*big.Int, *big.Int) {
	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(bps)))
	fee.Quo(fee, big.NewInt(BasisPointsDenominator))
	net := new(big.Int).Sub(gross, fee)
	return fee, net
}
