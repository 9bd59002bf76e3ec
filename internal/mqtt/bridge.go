package mqtt

import (
	"context"
	"log/slog"
	"sync"

	"github.com/WIPtitle/gpio-monitor/internal/fanout"
)

// Bridge forwards transition events from the fan-out hub to a
// Publisher. It consumes its own subscription, so a slow or offline
// broker backs up against the bridge's queue, never against the
// sampler or other subscribers.
type Bridge struct {
	hub    *fanout.Hub
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewBridge creates a Bridge. Call Start to begin forwarding.
func NewBridge(hub *fanout.Hub, pub Publisher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{hub: hub, pub: pub, logger: logger}
}

// Start subscribes to the hub and forwards events until ctx is
// cancelled, Stop is called, or the hub drops the subscription.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	sub := b.hub.Subscribe()
	go func() {
		defer close(b.done)
		defer b.hub.Unsubscribe(sub.ID)

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					b.logger.Warn("mqtt bridge dropped by hub, stopping")
					return
				}
				if err := b.pub.Publish(ev); err != nil {
					b.logger.Error("mqtt publish failed", "pin", ev.Pin, "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends forwarding and waits for the worker to exit. Safe to call
// multiple times and before Start.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
