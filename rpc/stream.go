package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"fundchain/core/types"
)

const (
	wsWriteTimeout    = 10 * time.Second
	subscriberBacklog = 256
	// replayLimit caps how much history one stream connection replays.
	replayLimit = 10_000
)

// EventReplayer reads committed events after a sequence cursor.
// *journal.Journal satisfies it.
type EventReplayer interface {
	Since(after uint64, limit int) ([]types.CommittedEvent, error)
}

// Hub fans committed events out to websocket subscribers. It is registered
// with the executor as an event sink. Slow subscribers are disconnected
// rather than allowed to block the executor.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch      chan EventView
	filter  map[string]struct{}
	dropped chan struct{}
	once    sync.Once
	// floor is the last replayed sequence; live events at or below it are
	// skipped. Only the stream goroutine touches it.
	floor uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

func (h *Hub) Name() string { return "stream" }

// Publish implements core.EventSink. It never fails.
func (h *Hub) Publish(_ context.Context, batch []types.CommittedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, evt := range batch {
		view := eventView(evt)
		for sub := range h.subs {
			if !sub.wants(evt.Type) {
				continue
			}
			select {
			case sub.ch <- view:
			default:
				sub.drop()
				delete(h.subs, sub)
			}
		}
	}
	return nil
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe(eventTypes []string) *subscriber {
	sub := &subscriber{ch: make(chan EventView, subscriberBacklog), dropped: make(chan struct{})}
	if len(eventTypes) > 0 {
		sub.filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (s *subscriber) wants(eventType string) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

func (s *subscriber) drop() { s.once.Do(func() { close(s.dropped) }) }

func eventView(evt types.CommittedEvent) EventView {
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return EventView{
		Sequence:   evt.Sequence,
		Root:       evt.Root,
		Call:       evt.Call,
		Timestamp:  evt.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       evt.Type,
		Attributes: attrs,
	}
}

func eventViews(batch []types.CommittedEvent) []EventView {
	out := make([]EventView, len(batch))
	for i, evt := range batch {
		out[i] = eventView(evt)
	}
	return out
}

// handleStream upgrades to a websocket and streams committed events. The
// optional types query parameter is a comma separated event type filter.
// With after set, journaled events past that sequence are replayed before
// live delivery starts.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var filter []string
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter = append(filter, t)
		}
	}
	replay := r.URL.Query().Get("after") != ""
	after, err := queryUint(r, "after", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if replay && s.replayer == nil {
		writeProblem(w, r, http.StatusServiceUnavailable, "unavailable", "event journal not configured")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Subscribe before reading the journal so nothing committed in between
	// is missed; duplicates are skipped by sequence.
	sub := s.hub.subscribe(filter)
	defer s.hub.unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	if replay {
		backlog, err := s.replayer.Since(after, replayLimit)
		if err != nil {
			s.logger.Warn("stream replay failed", "after", after, "error", err)
			_ = conn.Close(websocket.StatusInternalError, "replay failed")
			return
		}
		for _, evt := range backlog {
			if evt.Sequence > sub.floor {
				sub.floor = evt.Sequence
			}
			if !sub.wants(evt.Type) {
				continue
			}
			if err := writeEvent(ctx, conn, eventView(evt)); err != nil {
				return
			}
		}
	}
	if err := streamEvents(ctx, conn, sub); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, sub *subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.dropped:
			return conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		case evt := <-sub.ch:
			if evt.Sequence <= sub.floor {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt EventView) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
