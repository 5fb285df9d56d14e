package types

import "time"

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event so buffered events cannot be mutated
// by the emitting engine after the fact.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}

// CommittedEvent is an event that survived a committed call. Sequence is
// strictly increasing across the lifetime of the state database and Root is the
// state root produced by the call that emitted it.
type CommittedEvent struct {
	Sequence   uint64            `json:"sequence"`
	Root       string            `json:"root"`
	Call       string            `json:"call"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
