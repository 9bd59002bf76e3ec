// Package sampler implements the fixed-interval polling loop that
// drives the whole monitor: read every configured pin, feed the debounce
// engines through the store, and publish confirmed transitions.
package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/WIPtitle/gpio-monitor/internal/fanout"
	"github.com/WIPtitle/gpio-monitor/internal/hw"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

const (
	// TickInterval is the sampling period. It is a constant of the
	// design, not user-configurable: together with the 10-sample window
	// it bounds the worst-case confirmation delay at one second.
	TickInterval = 100 * time.Millisecond

	// readTimeout bounds a single hardware read. An overdue read is one
	// missed sample for that pin, logged and never retried.
	readTimeout = 50 * time.Millisecond
)

// Sampler is the scheduling heart of the monitor. It is the sole writer
// of pin runtime state and must outlive any single pin failure; only
// context cancellation stops it.
type Sampler struct {
	reader hw.Reader
	store  *store.Store
	hub    *fanout.Hub
	logger *slog.Logger

	interval time.Duration // TickInterval, shortened in tests

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Sampler over the given reader, store and hub.
func New(reader hw.Reader, st *store.Store, hub *fanout.Hub, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		reader:   reader,
		store:    st,
		hub:      hub,
		logger:   logger,
		interval: TickInterval,
	}
}

// Start launches the sampling loop in a background goroutine.
// Start is idempotent; calls after the first, or after Stop, are no-ops.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	var runCtx context.Context
	runCtx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()
}

// Stop halts the loop and waits for the in-flight tick to finish.
// Idempotent; safe to call before Start.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// run executes ticks until the context is cancelled. A sweep that
// overruns the period is logged as a soft warning and the next tick
// starts immediately; ticks are never skipped to catch up.
func (s *Sampler) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	// consume the initial firing so the first tick runs immediately
	<-timer.C

	for {
		tickStart := time.Now()
		s.sweep(ctx, tickStart)

		next := tickStart.Add(s.interval)
		wait := time.Until(next)
		if wait < 0 {
			s.logger.Warn("sampler tick overran its period",
				"elapsed", time.Since(tickStart),
				"period", s.interval,
			)
			s.store.Warn("sampler tick overran its period (%s elapsed)", time.Since(tickStart).Round(time.Millisecond))
			wait = 0
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// sweep reads every pin from a single configuration snapshot taken at
// tick start. Pins added or removed mid-tick take effect next tick,
// never mid-sweep.
func (s *Sampler) sweep(ctx context.Context, now time.Time) {
	for _, cfg := range s.store.Configs() {
		if ctx.Err() != nil {
			return
		}

		raw, err := s.readLevel(cfg)
		if err != nil {
			// one pin, one tick: skip the sample, keep the sweep alive
			s.logger.Warn("pin read failed, sample skipped",
				"pin", cfg.Pin,
				"error", err,
			)
			s.store.Warn("pin %d read failed: %v", cfg.Pin, err)
			continue
		}

		if ev, changed := s.store.Feed(cfg.Pin, raw, now); changed {
			s.logger.Info("pin transition",
				"pin", ev.Pin,
				"level", ev.Level,
			)
			s.hub.Publish(ev)
		}
	}
}

type readResult struct {
	level pin.Level
	err   error
}

// readLevel samples one pin with a deadline. A read still in flight when
// the deadline expires is abandoned; its goroutine drains into a
// buffered channel and cannot leak.
func (s *Sampler) readLevel(cfg pin.Config) (pin.Level, error) {
	done := make(chan readResult, 1)
	go func() {
		level, err := s.reader.ReadLevel(cfg.Pin, cfg.Pull)
		done <- readResult{level, err}
	}()

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.level, res.err
	case <-timer.C:
		return pin.Unknown, errReadDeadline
	}
}

type deadlineError struct{}

func (deadlineError) Error() string { return "read exceeded deadline" }

var errReadDeadline = deadlineError{}
