package crowdfund

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/native/common"
)

// DefaultMinDonation is the smallest gross donation accepted unless the policy
// is overridden.
var DefaultMinDonation = big.NewInt(10_000)

var errNilAuthorizer = errors.New("crowdfund: authorizer not configured")

// Ledger moves fungible assets on behalf of the escrow. *ledger.Engine
// satisfies it.
type Ledger interface {
	Allowance(token, owner, spender [20]byte) (*big.Int, error)
	TransferFrom(token, spender, from, to [20]byte, amount *big.Int) error
	Transfer(token, from, to [20]byte, amount *big.Int) error
}

// Authorizer checks role membership. *access.Engine satisfies it.
type Authorizer interface {
	RequireRole(role string, caller [20]byte) error
}

type engineState interface {
	CrowdfundTokenSupported(token [20]byte) (bool, error)
	CrowdfundAddToken(token [20]byte) error
	CrowdfundTokens() ([][20]byte, error)
	CrowdfundProjectCount() (uint64, error)
	CrowdfundSetProjectCount(count uint64) error
	CrowdfundPutProject(p *Project) error
	CrowdfundGetProject(id uint64) (*Project, bool, error)
	CrowdfundPutThreshold(projectID, index uint64, t *Threshold) error
	CrowdfundGetThreshold(projectID, index uint64) (*Threshold, bool, error)
	CrowdfundDonation(donor [20]byte, projectID uint64) (*big.Int, error)
	CrowdfundSetDonation(donor [20]byte, projectID uint64, amount *big.Int) error
	CrowdfundBallot(voter [20]byte, projectID, index uint64) (Ballot, error)
	CrowdfundPutBallot(voter [20]byte, projectID, index uint64, b Ballot) error
	CrowdfundFeePool(token [20]byte) (*big.Int, error)
	CrowdfundSetFeePool(token [20]byte, amount *big.Int) error
}

type crowdfundEvent struct {
	evt *types.Event
}

func (e crowdfundEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e crowdfundEvent) Event() *types.Event { return e.evt }

// Engine implements the threshold-gated crowdfunding escrow. Assets are held
// by the vault account on the external ledger; the engine keeps the project,
// threshold, donation, ballot and fee bookkeeping in state.
type Engine struct {
	state       engineState
	ledger      Ledger
	auth        Authorizer
	pauses      common.PauseView
	emitter     events.Emitter
	vault       [20]byte
	minDonation *big.Int
	nowFn       func() int64
}

// NewEngine creates a crowdfunding engine with a no-op emitter, the default
// vault address and the default minimum donation.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		vault:       DefaultVaultAddress(),
		minDonation: new(big.Int).Set(DefaultMinDonation),
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// DefaultVaultAddress derives the module account holding escrowed assets.
func DefaultVaultAddress() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("fundchain/crowdfund/vault"))[12:])
	return addr
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the asset ledger used to pull donations and push
// withdrawals.
func (e *Engine) SetLedger(l Ledger) { e.ledger = l }

// SetAuthorizer configures the role policy.
func (e *Engine) SetAuthorizer(a Authorizer) { e.auth = a }

// SetPauses configures the circuit breaker consulted by mutating operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetVault overrides the escrow account.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the escrow account donors approve.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetMinDonation overrides the minimum gross donation. Nil or negative values
// restore the default.
func (e *Engine) SetMinDonation(min *big.Int) {
	if min == nil || min.Sign() < 0 {
		e.minDonation = new(big.Int).Set(DefaultMinDonation)
		return
	}
	e.minDonation = new(big.Int).Set(min)
}

// MinDonation returns the configured minimum gross donation.
func (e *Engine) MinDonation() *big.Int { return cloneBigInt(e.minDonation) }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
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
	e.emitter.Emit(crowdfundEvent{evt: evt})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) requireRole(role string, caller [20]byte) error {
	if e.auth == nil {
		return errNilAuthorizer
	}
	return e.auth.RequireRole(role, caller)
}

func (e *Engine) guard() error {
	return common.Guard(e.pauses, ModuleName)
}

func (e *Engine) loadProject(id uint64) (*Project, error) {
	project, ok, err := e.state.CrowdfundGetProject(id)
	if err != nil {
		return nil, err
	}
	if !ok || project == nil {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProjectId, id)
	}
	return project, nil
}

func (e *Engine) loadThreshold(projectID, index uint64) (*Threshold, error) {
	threshold, ok, err := e.state.CrowdfundGetThreshold(projectID, index)
	if err != nil {
		return nil, err
	}
	if !ok || threshold == nil {
		return nil, fmt.Errorf("%w: project %d threshold %d", ErrInvalidThresholdId, projectID, index)
	}
	return threshold, nil
}

func (e *Engine) storeProject(p *Project) error {
	p.UpdatedAt = e.nowFn()
	return e.state.CrowdfundPutProject(p)
}
