package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"fundchain/core/events"
	"fundchain/core/types"
)

var (
	ErrZeroAddress           = errors.New("ledger: zero address")
	ErrInvalidAmount         = errors.New("ledger: amount must be positive")
	ErrInsufficientBalance   = errors.New("ledger: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrOverflow              = errors.New("ledger: amount overflows 256 bits")
	errNilState              = errors.New("ledger: state not configured")
)

type engineState interface {
	LedgerBalance(token, owner [20]byte) (*big.Int, error)
	LedgerSetBalance(token, owner [20]byte, amount *big.Int) error
	LedgerAllowance(token, owner, spender [20]byte) (*big.Int, error)
	LedgerSetAllowance(token, owner, spender [20]byte, amount *big.Int) error
	LedgerSupply(token [20]byte) (*big.Int, error)
	LedgerSetSupply(token [20]byte, amount *big.Int) error
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Engine is a multi-asset fungible ledger modelling 256-bit unsigned balances.
// Assets are identified by a 20-byte token address.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a ledger engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(ledgerEvent{evt: evt})
}

// Balance returns the owner's balance of token.
func (e *Engine) Balance(token, owner [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LedgerBalance(token, owner)
}

// Allowance returns the amount spender may pull from owner.
func (e *Engine) Allowance(token, owner, spender [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LedgerAllowance(token, owner, spender)
}

// Supply returns the total minted supply of token.
func (e *Engine) Supply(token [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.LedgerSupply(token)
}

// Mint credits freshly issued units to the recipient.
func (e *Engine) Mint(token, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZero(token) || isZero(to) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	supply, err := e.state.LedgerSupply(token)
	if err != nil {
		return err
	}
	nextSupply, err := checkedAdd(supply, amount)
	if err != nil {
		return err
	}
	balance, err := e.state.LedgerBalance(token, to)
	if err != nil {
		return err
	}
	nextBalance, err := checkedAdd(balance, amount)
	if err != nil {
		return err
	}
	if err := e.state.LedgerSetSupply(token, nextSupply); err != nil {
		return err
	}
	if err := e.state.LedgerSetBalance(token, to, nextBalance); err != nil {
		return err
	}
	e.emit(NewMintEvent(token, to, amount))
	return nil
}

// Approve sets the allowance spender may pull from owner, replacing any prior
// value. A zero amount clears the allowance.
func (e *Engine) Approve(token, owner, spender [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZero(token) || isZero(owner) || isZero(spender) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrOverflow
	}
	if err := e.state.LedgerSetAllowance(token, owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	e.emit(NewApprovalEvent(token, owner, spender, amount))
	return nil
}

// Transfer moves amount of token from one account to another.
func (e *Engine) Transfer(token, from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZero(token) || isZero(from) || isZero(to) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if err := e.move(token, from, to, amount); err != nil {
		return err
	}
	e.emit(NewTransferEvent(token, from, to, amount))
	return nil
}

// TransferFrom moves amount from one account to another on behalf of spender,
// consuming spender's allowance.
func (e *Engine) TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if isZero(token) || isZero(spender) || isZero(from) || isZero(to) {
		return ErrZeroAddress
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	allowance, err := e.state.LedgerAllowance(token, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	if err := e.move(token, from, to, amount); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(allowance, amount)
	if err := e.state.LedgerSetAllowance(token, from, spender, remaining); err != nil {
		return err
	}
	e.emit(NewTransferEvent(token, from, to, amount))
	return nil
}

func (e *Engine) move(token, from, to [20]byte, amount *big.Int) error {
	fromBalance, err := e.state.LedgerBalance(token, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	toBalance, err := e.state.LedgerBalance(token, to)
	if err != nil {
		return err
	}
	nextTo, err := checkedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := e.state.LedgerSetBalance(token, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return e.state.LedgerSetBalance(token, to, nextTo)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return ErrOverflow
	}
	return nil
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	x, overflow := uint256.FromBig(nonNil(a))
	if overflow {
		return nil, ErrOverflow
	}
	y, overflow := uint256.FromBig(nonNil(b))
	if overflow {
		return nil, ErrOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func isZero(addr [20]byte) bool { return addr == [20]byte{} }
