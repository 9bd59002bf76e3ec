// Package fanout delivers confirmed transition events to live
// subscribers.
//
// Each subscriber gets its own bounded queue and progresses
// independently. Publish never blocks: a subscriber whose queue is full
// is dropped outright, protecting the sampler loop's cadence from slow
// or broken consumers. Fresh subscribers receive no backlog, only events
// published after they connected.
package fanout

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// queueSize is the per-subscriber pending-event capacity. A consumer
// that falls a hundred events behind a 10Hz sampler is not coming back.
const queueSize = 100

// Subscriber is one open live-update channel.
type Subscriber struct {
	// ID identifies the subscriber for Unsubscribe and logging.
	ID string

	// ConnectedSince is when the subscription was registered.
	ConnectedSince time.Time

	// C receives events. It is closed when the subscriber is
	// unsubscribed or dropped for backpressure; consumers must treat
	// channel closure as end-of-stream.
	C <-chan pin.Event

	ch chan pin.Event
}

// Hub fans events out to all current subscribers.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscriber
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]*Subscriber),
	}
}

// Subscribe registers a new live-update destination.
func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan pin.Event, queueSize)
	sub := &Subscriber{
		ID:             uuid.NewString(),
		ConnectedSince: time.Now(),
		C:              ch,
		ch:             ch,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("subscriber connected", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown or
// already-removed ids are a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Publish pushes an event to every subscriber's queue without blocking.
// Subscribers whose queue is full are dropped; delivery to the others is
// unaffected.
func (h *Hub) Publish(ev pin.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(h.subs, id)
			close(sub.ch)
			h.logger.Warn("subscriber dropped, queue full",
				"subscriber_id", id,
				"connected_since", sub.ConnectedSince,
			)
		}
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber. Used on shutdown so SSE handlers observe
// end-of-stream promptly.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
