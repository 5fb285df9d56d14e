package crowdfund

import (
	"fmt"
	"math/big"

	"fundchain/native/access"
)

// Withdraw pays the project's released balance to its owner.
func (e *Engine) Withdraw(caller [20]byte, projectID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return nil, err
	}
	if caller != project.Owner {
		return nil, ErrNotProjectOwner
	}
	amount := cloneBigInt(project.AvailableToWithdraw)
	if amount.Sign() <= 0 {
		return nil, ErrNoFundsToWithdraw
	}
	project.AvailableToWithdraw = big.NewInt(0)
	if err := e.storeProject(project); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(project.ExchangeToken, e.vault, project.Owner, amount); err != nil {
		return nil, fmt.Errorf("crowdfund: release funds: %w", err)
	}
	e.emit(NewFundsWithdrawnEvent(project, amount))
	return amount, nil
}

// WithdrawFees sweeps the accrued fee pool of token to the caller.
func (e *Engine) WithdrawFees(caller [20]byte, token [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireRole(access.RoleWithdrawer, caller); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if isZeroAddress(token) {
		return nil, ErrZeroAddress
	}
	pool, err := e.state.CrowdfundFeePool(token)
	if err != nil {
		return nil, err
	}
	if pool == nil || pool.Sign() <= 0 {
		return nil, ErrNoFeesToWithdraw
	}
	amount := new(big.Int).Set(pool)
	if err := e.state.CrowdfundSetFeePool(token, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(token, e.vault, caller, amount); err != nil {
		return nil, fmt.Errorf("crowdfund: sweep fees: %w", err)
	}
	e.emit(NewFeesWithdrawnEvent(token, caller, amount))
	return amount, nil
}

// FeesAvailable returns the accrued fee balance of token.
func (e *Engine) FeesAvailable(token [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.state.CrowdfundFeePool(token)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(pool), nil
}

// WithdrawToOtherProject moves the entire current amount of one project into
// another project backed by the same token. Released balances are left alone.
// The source may be inactive; the destination must be active. A destination
// past its last threshold receives the amount as withdrawable, as a donation
// would.
func (e *Engine) WithdrawToOtherProject(caller [20]byte, fromID, toID uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireRole(access.RoleUpdater, caller); err != nil {
		return nil, err
	}
	if err := e.guard(); err != nil {
		return nil, err
	}
	from, err := e.loadProject(fromID)
	if err != nil {
		return nil, err
	}
	to, err := e.loadProject(toID)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, ErrCantWithdrawToSameProject
	}
	if from.ExchangeToken != to.ExchangeToken {
		return nil, ErrDifferentExchangeToken
	}
	if !to.IsActive {
		return nil, ErrProjectNotActive
	}
	amount := cloneBigInt(from.CurrentAmount)
	if amount.Sign() <= 0 {
		return nil, ErrNoFundsToWithdraw
	}
	from.CurrentAmount = big.NewInt(0)
	to.CurrentAmount = new(big.Int).Add(to.CurrentAmount, amount)
	var opened *sessionOpening
	if to.AllThresholdsPassed() {
		to.AvailableToWithdraw = new(big.Int).Add(to.AvailableToWithdraw, amount)
	} else {
		opened, err = e.maybeOpenSession(to)
		if err != nil {
			return nil, err
		}
	}
	if err := e.storeProject(from); err != nil {
		return nil, err
	}
	if err := e.storeProject(to); err != nil {
		return nil, err
	}
	e.emit(NewFundsTransferredEvent(from, to, amount))
	if opened != nil {
		e.emit(NewSessionStartedEvent(to, opened.index, opened.cumulative))
	}
	return amount, nil
}
