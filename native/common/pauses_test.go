package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/core/events"
	"fundchain/native/access"
)

type mockPauseState struct{ paused map[string]bool }

func (m *mockPauseState) SetPaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockPauseState) IsPaused(module string) bool { return m.paused[module] }

type staticRoles struct{ pauser [20]byte }

func (s staticRoles) RequireRole(role string, caller [20]byte) error {
	if role == access.RolePauser && caller == s.pauser {
		return nil
	}
	return &access.MissingRoleError{Account: caller, Role: role}
}

type countingEmitter struct{ types []string }

func (c *countingEmitter) Emit(evt events.Event) { c.types = append(c.types, evt.EventType()) }

func TestGuard(t *testing.T) {
	require.NoError(t, Guard(nil, "crowdfund"))
	state := &mockPauseState{paused: map[string]bool{"crowdfund": true}}
	require.ErrorIs(t, Guard(state, "crowdfund"), ErrModulePaused)
	require.NoError(t, Guard(state, ""))
	require.NoError(t, Guard(state, "ledger"))
}

func TestPauseUnpause(t *testing.T) {
	pauser := [20]byte{0x01}
	state := &mockPauseState{paused: map[string]bool{}}
	emitter := &countingEmitter{}
	p := NewPauses()
	p.SetState(state)
	p.SetRoleChecker(staticRoles{pauser: pauser})
	p.SetEmitter(emitter)

	require.ErrorIs(t, p.Unpause(pauser, "crowdfund"), ErrModuleNotPaused)
	require.NoError(t, p.Pause(pauser, " Crowdfund "))
	require.True(t, p.IsPaused("crowdfund"))
	require.ErrorIs(t, p.Pause(pauser, "crowdfund"), ErrModulePaused)
	require.ErrorIs(t, Guard(p, "crowdfund"), ErrModulePaused)

	err := p.Unpause([20]byte{0x02}, "crowdfund")
	require.True(t, access.IsMissingRole(err))

	require.NoError(t, p.Unpause(pauser, "crowdfund"))
	require.False(t, p.IsPaused("crowdfund"))
	require.Equal(t, []string{EventTypeModulePaused, EventTypeModuleUnpaused}, emitter.types)

	require.ErrorIs(t, p.Pause(pauser, ""), ErrEmptyModule)
}

func TestPausesBootstrapAndNilState(t *testing.T) {
	p := NewPauses()
	require.False(t, p.IsPaused("crowdfund"))
	require.True(t, errors.Is(p.Pause([20]byte{}, "crowdfund"), errNilState))

	p.SetState(&mockPauseState{paused: map[string]bool{}})
	require.NoError(t, p.Bootstrap("crowdfund", true))
	require.True(t, p.IsPaused("crowdfund"))
}
