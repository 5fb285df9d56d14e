package access

import (
	"bytes"

	"fundchain/core/events"
	"fundchain/core/types"
)

type engineState interface {
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
	HasRole(role string, addr []byte) bool
	RoleMembers(role string) ([][]byte, error)
}

type accessEvent struct {
	evt *types.Event
}

func (e accessEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e accessEvent) Event() *types.Event { return e.evt }

// Engine maintains role membership. Grants and revocations are restricted to
// holders of DEFAULT_ADMIN.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates an access engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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
	e.emitter.Emit(accessEvent{evt: evt})
}

// HasRole reports whether the account currently holds the role.
func (e *Engine) HasRole(role string, account [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return false
	}
	return e.state.HasRole(normalized, account[:])
}

// RequireRole returns a MissingRoleError when the caller lacks the role.
func (e *Engine) RequireRole(role string, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if !e.state.HasRole(normalized, caller[:]) {
		return &MissingRoleError{Account: caller, Role: normalized}
	}
	return nil
}

// Bootstrap assigns a role without an authorisation check. It is intended for
// genesis configuration only.
func (e *Engine) Bootstrap(role string, account [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAccount
	}
	if e.state.HasRole(normalized, account[:]) {
		return nil
	}
	if err := e.state.SetRole(normalized, account[:]); err != nil {
		return err
	}
	e.emit(NewRoleGrantedEvent(normalized, account, [20]byte{}))
	return nil
}

// Grant assigns the role to account. Granting a role already held is a no-op.
func (e *Engine) Grant(caller [20]byte, role string, account [20]byte) error {
	if err := e.RequireRole(RoleDefaultAdmin, caller); err != nil {
		return err
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAccount
	}
	if e.state.HasRole(normalized, account[:]) {
		return nil
	}
	if err := e.state.SetRole(normalized, account[:]); err != nil {
		return err
	}
	e.emit(NewRoleGrantedEvent(normalized, account, caller))
	return nil
}

// Revoke removes the role from account. Revoking a role not held is a no-op.
func (e *Engine) Revoke(caller [20]byte, role string, account [20]byte) error {
	if err := e.RequireRole(RoleDefaultAdmin, caller); err != nil {
		return err
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return err
	}
	if !e.state.HasRole(normalized, account[:]) {
		return nil
	}
	if err := e.state.RemoveRole(normalized, account[:]); err != nil {
		return err
	}
	e.emit(NewRoleRevokedEvent(normalized, account, caller))
	return nil
}

// Members lists accounts holding the role.
func (e *Engine) Members(role string) ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeRole(role)
	if err != nil {
		return nil, err
	}
	raw, err := e.state.RoleMembers(normalized)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, member := range raw {
		if len(member) != 20 || bytes.Equal(member, make([]byte, 20)) {
			continue
		}
		var addr [20]byte
		copy(addr[:], member)
		out = append(out, addr)
	}
	return out, nil
}
