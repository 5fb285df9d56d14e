package events

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/core/types"
)

type payloadEvent struct{ evt *types.Event }

func (p payloadEvent) EventType() string    { return p.evt.Type }
func (p payloadEvent) Event() *types.Event { return p.evt }

type bareEvent string

func (b bareEvent) EventType() string { return string(b) }

func TestBufferPreservesOrderAndCopies(t *testing.T) {
	buf := NewBuffer()
	first := &types.Event{Type: "first", Attributes: map[string]string{"k": "v"}}
	buf.Emit(payloadEvent{evt: first})
	buf.Emit(bareEvent("second"))
	buf.Emit(nil)

	first.Attributes["k"] = "mutated"

	require.Equal(t, 2, buf.Len())
	drained := buf.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, "first", drained[0].Type)
	require.Equal(t, "v", drained[0].Attributes["k"])
	require.Equal(t, "second", drained[1].Type)
	require.Empty(t, drained[1].Attributes)
	require.Zero(t, buf.Len())
}

func TestBufferDiscard(t *testing.T) {
	buf := NewBuffer()
	buf.Emit(bareEvent("dropped"))
	buf.Discard()
	require.Empty(t, buf.Drain())
}
