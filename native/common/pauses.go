package common

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/native/access"
)

const (
	EventTypeModulePaused   = "common.module.paused"
	EventTypeModuleUnpaused = "common.module.unpaused"
)

var (
	ErrModulePaused    = errors.New("pause: module paused")
	ErrModuleNotPaused = errors.New("pause: module not paused")
	ErrEmptyModule     = errors.New("pause: module must not be empty")
	errNilState        = errors.New("pause: state not configured")
)

// PauseView is the read side engines consult before mutating state.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused while module is paused. Nil views and the
// empty module pass.
func Guard(view PauseView, module string) error {
	if view == nil || module == "" || !view.IsPaused(module) {
		return nil
	}
	return ErrModulePaused
}

type pauseState interface {
	SetPaused(module string, paused bool) error
	IsPaused(module string) bool
}

// RoleChecker authorises callers. *access.Engine satisfies it.
type RoleChecker interface {
	RequireRole(role string, caller [20]byte) error
}

type pauseEvent struct {
	evt *types.Event
}

func (e pauseEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e pauseEvent) Event() *types.Event { return e.evt }

// Pauses is the circuit breaker toggled by PAUSER role holders. It satisfies
// PauseView so engines can guard on it directly.
type Pauses struct {
	state   pauseState
	roles   RoleChecker
	emitter events.Emitter
	nowFn   func() int64
}

// NewPauses returns a circuit breaker with a no-op emitter.
func NewPauses() *Pauses {
	return &Pauses{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func (p *Pauses) SetState(state pauseState)   { p.state = state }
func (p *Pauses) SetRoleChecker(r RoleChecker) { p.roles = r }

func (p *Pauses) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

func (p *Pauses) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.state == nil {
		return false
	}
	return p.state.IsPaused(normalizeModule(module))
}

// Pause halts the module. Pausing an already paused module fails with
// ErrModulePaused.
func (p *Pauses) Pause(caller [20]byte, module string) error {
	return p.toggle(caller, module, true)
}

// Unpause resumes the module. Unpausing a running module fails with
// ErrModuleNotPaused.
func (p *Pauses) Unpause(caller [20]byte, module string) error {
	return p.toggle(caller, module, false)
}

// Bootstrap sets the initial pause flag without an authorisation check.
func (p *Pauses) Bootstrap(module string, paused bool) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	normalized := normalizeModule(module)
	if normalized == "" {
		return ErrEmptyModule
	}
	return p.state.SetPaused(normalized, paused)
}

func (p *Pauses) toggle(caller [20]byte, module string, paused bool) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if p.roles != nil {
		if err := p.roles.RequireRole(access.RolePauser, caller); err != nil {
			return err
		}
	}
	normalized := normalizeModule(module)
	if normalized == "" {
		return ErrEmptyModule
	}
	current := p.state.IsPaused(normalized)
	if paused && current {
		return ErrModulePaused
	}
	if !paused && !current {
		return ErrModuleNotPaused
	}
	if err := p.state.SetPaused(normalized, paused); err != nil {
		return err
	}
	eventType := EventTypeModuleUnpaused
	if paused {
		eventType = EventTypeModulePaused
	}
	if p.emitter != nil {
		p.emitter.Emit(pauseEvent{evt: &types.Event{
			Type: eventType,
			Attributes: map[string]string{
				"module": normalized,
				"by":     hex.EncodeToString(caller[:]),
				"at":     strconv.FormatInt(p.nowFn(), 10),
			},
		}})
	}
	return nil
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
