package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fundchain/core/events"
	"fundchain/core/state"
	"fundchain/core/types"
	"fundchain/native/access"
	nativecommon "fundchain/native/common"
	"fundchain/native/crowdfund"
	"fundchain/native/ledger"
	"fundchain/observability"
	"fundchain/storage"
	"fundchain/storage/trie"
)

var headRootKey = []byte("fundchain/head-root")

// ErrExecutorClosed is returned once Close has been called.
var ErrExecutorClosed = errors.New("executor: closed")

// EventSink receives committed events in sequence order. Publish is called
// while the executor lock is held, so sinks observe a total order.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, batch []types.CommittedEvent) error
}

// Context bundles the engines a call operates on. Every engine shares the
// call's state trie and event buffer.
type Context struct {
	State     *state.Manager
	Crowdfund *crowdfund.Engine
	Ledger    *ledger.Engine
	Access    *access.Engine
	Pauses    *nativecommon.Pauses
}

// Options tune executor construction.
type Options struct {
	Logger      *slog.Logger
	Now         func() time.Time
	MinDonation *big.Int
	// Vault overrides the derived crowdfund vault account when non-zero.
	Vault [20]byte
}

// Executor serialises state calls. A call either commits all of its writes
// and events or leaves the trie at the previous root with nothing published.
type Executor struct {
	mu     sync.Mutex
	db     storage.Database
	trie   *trie.Trie
	buffer *events.Buffer
	ctx    *Context
	sinks  []EventSink
	logger *slog.Logger
	now    func() time.Time
	closed bool
}

// NewExecutor opens the state trie at the last committed head root stored in
// db, or an empty trie for a fresh database.
func NewExecutor(db storage.Database, opts Options) (*Executor, error) {
	if db == nil {
		return nil, errors.New("executor: nil database")
	}
	var root []byte
	stored, err := db.Get(headRootKey)
	switch {
	case err == nil:
		root = stored
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("executor: load head root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("executor: open trie: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	unix := func() int64 { return now().Unix() }

	buffer := events.NewBuffer()
	manager := state.NewManager(tr)

	accessEngine := access.NewEngine()
	accessEngine.SetState(manager)
	accessEngine.SetEmitter(buffer)

	pauses := nativecommon.NewPauses()
	pauses.SetState(manager)
	pauses.SetRoleChecker(accessEngine)
	pauses.SetEmitter(buffer)
	pauses.SetNowFunc(unix)

	ledgerEngine := ledger.NewEngine()
	ledgerEngine.SetState(manager)
	ledgerEngine.SetEmitter(buffer)

	crowdfundEngine := crowdfund.NewEngine()
	crowdfundEngine.SetState(manager)
	crowdfundEngine.SetLedger(ledgerEngine)
	crowdfundEngine.SetAuthorizer(accessEngine)
	crowdfundEngine.SetPauses(pauses)
	crowdfundEngine.SetEmitter(buffer)
	crowdfundEngine.SetNowFunc(unix)
	if opts.MinDonation != nil {
		crowdfundEngine.SetMinDonation(opts.MinDonation)
	}
	if opts.Vault != ([20]byte{}) {
		crowdfundEngine.SetVault(opts.Vault)
	}

	return &Executor{
		db:     db,
		trie:   tr,
		buffer: buffer,
		ctx: &Context{
			State:     manager,
			Crowdfund: crowdfundEngine,
			Ledger:    ledgerEngine,
			Access:    accessEngine,
			Pauses:    pauses,
		},
		logger: logger.With("component", "executor"),
		now:    now,
	}, nil
}

// AddSink registers a consumer of committed events.
func (e *Executor) AddSink(sink EventSink) {
	if sink == nil {
		return
	}
	e.mu.Lock()
	e.sinks = append(e.sinks, sink)
	e.mu.Unlock()
}

// Root returns the last committed state root.
func (e *Executor) Root() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trie.Root()
}

// Execute runs fn as one atomic call named call. On error the trie is reset
// to the previous root and buffered events are dropped. On success the events
// are sequenced, the trie is committed and the batch is handed to every sink.
func (e *Executor) Execute(ctx context.Context, call string, fn func(*Context) error) ([]types.CommittedEvent, error) {
	if fn == nil {
		return nil, errors.New("executor: nil call")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("fundchain/core").Start(ctx, "executor.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("call", call))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrExecutorClosed
	}

	start := e.now()
	committed, err := e.execute(call, fn)
	observability.Executor().ObserveCall(call, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("call reverted", "call", call, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(committed)))
	e.logger.Debug("call committed", "call", call, "events", len(committed), "root", e.trie.Root().Hex())
	e.publish(ctx, committed)
	return committed, nil
}

func (e *Executor) execute(call string, fn func(*Context) error) (out []types.CommittedEvent, err error) {
	parent := e.trie.Root()
	e.buffer.Discard()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: call %s panicked: %v", call, r)
		}
		if err != nil {
			e.buffer.Discard()
			if rbErr := e.trie.Reset(parent); rbErr != nil {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	if err = fn(e.ctx); err != nil {
		return nil, err
	}

	drained := e.buffer.Drain()
	seq, err := e.ctx.State.EventSequence()
	if err != nil {
		return nil, fmt.Errorf("executor: load event sequence: %w", err)
	}
	if len(drained) > 0 {
		if err = e.ctx.State.SetEventSequence(seq + uint64(len(drained))); err != nil {
			return nil, fmt.Errorf("executor: store event sequence: %w", err)
		}
	}
	root, err := e.trie.Commit()
	if err != nil {
		return nil, fmt.Errorf("executor: commit: %w", err)
	}
	if err = e.db.Put(headRootKey, root.Bytes()); err != nil {
		return nil, fmt.Errorf("executor: persist head root: %w", err)
	}

	ts := e.now().UTC()
	out = make([]types.CommittedEvent, len(drained))
	for i, evt := range drained {
		seq++
		out[i] = types.CommittedEvent{
			Sequence:   seq,
			Root:       root.Hex(),
			Call:       call,
			Timestamp:  ts,
			Type:       evt.Type,
			Attributes: evt.Attributes,
		}
	}
	if len(out) > 0 {
		observability.Executor().SetSequence(seq)
	}
	return out, nil
}

func (e *Executor) publish(ctx context.Context, batch []types.CommittedEvent) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range e.sinks {
		if err := sink.Publish(ctx, batch); err != nil {
			observability.Executor().RecordSinkError(sink.Name())
			e.logger.Warn("event sink publish failed",
				"sink", sink.Name(),
				"first_sequence", batch[0].Sequence,
				"error", err)
		}
	}
}

// View runs fn against committed state. Writes made by fn are discarded.
func (e *Executor) View(fn func(*Context) error) error {
	if fn == nil {
		return errors.New("executor: nil view")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	err := fn(e.ctx)
	e.buffer.Discard()
	if e.trie.Dirty() {
		if rbErr := e.trie.Reset(e.trie.Root()); rbErr != nil && err == nil {
			err = rbErr
		}
	}
	return err
}

// Close marks the executor closed. The database is owned by the caller.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
