package core

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fundchain/core/types"
	"fundchain/native/access"
	"fundchain/native/crowdfund"
	"fundchain/storage"
)

var (
	admin   = [20]byte{0xAD}
	updater = [20]byte{0x01}
	owner   = [20]byte{0x03}
	donor   = [20]byte{0x10}
	token   = [20]byte{0xA1}
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]types.CommittedEvent
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, batch []types.CommittedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *recordingSink) all() []types.CommittedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CommittedEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func fixedClock() func() time.Time {
	ts := time.Unix(1_700_000_000, 0)
	return func() time.Time { return ts }
}

func newTestExecutor(t *testing.T, db storage.Database) *Executor {
	t.Helper()
	exec, err := NewExecutor(db, Options{Now: fixedClock()})
	require.NoError(t, err)
	require.NoError(t, exec.Bootstrap(context.Background(), Genesis{
		Roles: map[string][][20]byte{
			access.RoleDefaultAdmin: {admin},
			access.RoleUpdater:      {updater},
		},
	}))
	return exec
}

func setupProject(t *testing.T, exec *Executor) uint64 {
	t.Helper()
	var id uint64
	_, err := exec.Execute(context.Background(), "setup", func(c *Context) error {
		if err := c.Crowdfund.AddToken(updater, token); err != nil {
			return err
		}
		var err error
		id, err = c.Crowdfund.CreateProject(updater, crowdfund.ProjectData{
			Owner:                  owner,
			ExchangeToken:          token,
			Name:                   "Well",
			RequiredAmount:         big.NewInt(300_000),
			RequiredVotePercentage: 5000,
			VoteCooldown:           1,
		}, []*big.Int{big.NewInt(50_000), big.NewInt(100_000), big.NewInt(150_000)})
		if err != nil {
			return err
		}
		if err := c.Ledger.Mint(token, donor, big.NewInt(1_000_000)); err != nil {
			return err
		}
		return c.Ledger.Approve(token, donor, c.Crowdfund.Vault(), big.NewInt(1_000_000))
	})
	require.NoError(t, err)
	return id
}

func TestExecuteCommitsAndSequencesEvents(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	sink := &recordingSink{}
	exec.AddSink(sink)
	id := setupProject(t, exec)

	committed, err := exec.Execute(context.Background(), "donate", func(c *Context) error {
		return c.Crowdfund.Donate(donor, id, big.NewInt(60_000))
	})
	require.NoError(t, err)
	require.NotEmpty(t, committed)
	require.Equal(t, "donate", committed[0].Call)
	require.Equal(t, exec.Root().Hex(), committed[0].Root)

	all := sink.all()
	for i := 1; i < len(all); i++ {
		require.Equal(t, all[i-1].Sequence+1, all[i].Sequence, "sequence must be gapless")
	}
	var sawSession bool
	for _, evt := range committed {
		if evt.Type == crowdfund.EventTypeVoteSessionStarted {
			sawSession = true
		}
	}
	require.True(t, sawSession)
}

func TestExecuteRollsBackOnError(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	id := setupProject(t, exec)
	sink := &recordingSink{}
	exec.AddSink(sink)
	root := exec.Root()

	boom := errors.New("boom")
	_, err := exec.Execute(context.Background(), "donate-then-fail", func(c *Context) error {
		if err := c.Crowdfund.Donate(donor, id, big.NewInt(60_000)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, root, exec.Root())
	require.Empty(t, sink.all())

	require.NoError(t, exec.View(func(c *Context) error {
		p, err := c.Crowdfund.Project(id)
		require.NoError(t, err)
		require.Zero(t, p.CurrentAmount.Sign())
		bal, err := c.Ledger.Balance(token, donor)
		require.NoError(t, err)
		require.Equal(t, int64(1_000_000), bal.Int64())
		return nil
	}))
}

func TestExecuteRecoversPanics(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	root := exec.Root()
	_, err := exec.Execute(context.Background(), "panic", func(c *Context) error {
		_ = c.Ledger.Mint(token, donor, big.NewInt(1))
		panic("unexpected")
	})
	require.Error(t, err)
	require.Equal(t, root, exec.Root())
}

func TestViewDiscardsWrites(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	root := exec.Root()
	require.NoError(t, exec.View(func(c *Context) error {
		return c.Ledger.Mint(token, donor, big.NewInt(5))
	}))
	require.Equal(t, root, exec.Root())
	require.NoError(t, exec.View(func(c *Context) error {
		bal, err := c.Ledger.Balance(token, donor)
		require.NoError(t, err)
		require.Zero(t, bal.Sign())
		return nil
	}))
}

func TestSinkErrorDoesNotRevert(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	exec.AddSink(&recordingSink{err: errors.New("sink down")})
	committed, err := exec.Execute(context.Background(), "mint", func(c *Context) error {
		return c.Ledger.Mint(token, donor, big.NewInt(5))
	})
	require.NoError(t, err)
	require.Len(t, committed, 1)
}

func TestExecutorReopensAtHeadRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	exec := newTestExecutor(t, db)
	id := setupProject(t, exec)
	root := exec.Root()
	exec.Close()
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	again, err := NewExecutor(reopened, Options{Now: fixedClock()})
	require.NoError(t, err)
	require.Equal(t, root, again.Root())

	committed, err := again.Execute(context.Background(), "donate", func(c *Context) error {
		return c.Crowdfund.Donate(donor, id, big.NewInt(20_000))
	})
	require.NoError(t, err)
	require.NotEmpty(t, committed)
	require.Greater(t, committed[0].Sequence, uint64(1), "sequence continues across restarts")
}

func TestBootstrapIsIdempotent(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	g := Genesis{
		Roles:  map[string][][20]byte{access.RoleDefaultAdmin: {admin}},
		Paused: map[string]bool{crowdfund.ModuleName: true},
	}
	require.NoError(t, exec.Bootstrap(context.Background(), g))
	require.NoError(t, exec.Bootstrap(context.Background(), g))
	require.NoError(t, exec.View(func(c *Context) error {
		require.True(t, c.Pauses.IsPaused(crowdfund.ModuleName))
		members, err := c.Access.Members(access.RoleDefaultAdmin)
		require.NoError(t, err)
		require.Len(t, members, 1)
		return nil
	}))

	err := exec.Bootstrap(context.Background(), Genesis{Roles: map[string][][20]byte{"ROOT": {admin}}})
	require.ErrorIs(t, err, access.ErrUnknownRole)
}

func TestClosedExecutor(t *testing.T) {
	exec := newTestExecutor(t, storage.NewMemDB())
	exec.Close()
	_, err := exec.Execute(context.Background(), "noop", func(*Context) error { return nil })
	require.ErrorIs(t, err, ErrExecutorClosed)
	require.ErrorIs(t, exec.View(func(*Context) error { return nil }), ErrExecutorClosed)
}
