// Package reconcile keeps the in-memory pin set convergent with the
// persisted configuration file.
//
// The reconciler polls the file for changes on a coarse interval and
// applies the minimal diff through the store's operations. Port changes
// are detected but never applied live; they raise a restart-required
// condition instead. A malformed or unreadable file skips the cycle and
// leaves the running state untouched.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

// DefaultInterval is how often the file is checked for changes. Coarser
// than the sampling period on purpose; configuration changes are rare.
const DefaultInterval = time.Second

// Diff is the minimal set of changes needed to converge the store on
// the desired pin set.
type Diff struct {
	Add    []pin.Config
	Update []pin.Config
	Remove []int
}

// Empty reports whether the diff contains no changes.
func (d Diff) Empty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}

// Compute diffs the current pin set against the desired one. Updates are
// configs whose parameters changed; they go through Upsert so the pin's
// debounce state restarts under the new parameters.
func Compute(current, desired []pin.Config) Diff {
	curByPin := make(map[int]pin.Config, len(current))
	for _, c := range current {
		curByPin[c.Pin] = c
	}
	desByPin := make(map[int]pin.Config, len(desired))
	for _, c := range desired {
		desByPin[c.Pin] = c
	}

	var d Diff
	for _, c := range desired {
		cur, ok := curByPin[c.Pin]
		switch {
		case !ok:
			d.Add = append(d.Add, c)
		case !cur.Equal(c):
			d.Update = append(d.Update, c)
		}
	}
	for _, c := range current {
		if _, ok := desByPin[c.Pin]; !ok {
			d.Remove = append(d.Remove, c.Pin)
		}
	}
	return d
}

// Reconciler watches the config file and applies diffs to the store.
type Reconciler struct {
	file   *config.File
	store  *store.Store
	logger *slog.Logger

	// runningPort is the port the HTTP server actually bound; a
	// persisted port differing from it flags restart-required.
	runningPort int

	interval time.Duration

	mu          sync.Mutex
	started     bool
	stopped     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	fingerprint string
}

// New creates a Reconciler for the given file and store.
func New(file *config.File, st *store.Store, runningPort int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		file:        file,
		store:       st,
		logger:      logger,
		runningPort: runningPort,
		interval:    DefaultInterval,
	}
}

// Start launches the watch loop in a background goroutine. Idempotent.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	var runCtx context.Context
	runCtx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.Tick()
			}
		}
	}()
}

// Stop halts the watch loop. Idempotent; safe before Start.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		if r.cancel != nil {
			r.cancel()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Tick runs one reconcile cycle: check the file fingerprint, and when
// it changed, load, diff and apply. Exposed so tests and the serve path
// can reconcile deterministically without waiting for the ticker.
func (r *Reconciler) Tick() {
	fp, err := r.file.Fingerprint()
	if err != nil {
		r.logger.Warn("config fingerprint failed", "error", err)
		r.store.Warn("config file unreadable: %v", err)
		return
	}

	r.mu.Lock()
	unchanged := fp == r.fingerprint
	r.mu.Unlock()
	if unchanged {
		return
	}

	if !r.LoadAndApply() {
		// parse failure: keep the old fingerprint so the next cycle
		// retries, and keep the in-memory state untouched
		return
	}

	r.mu.Lock()
	r.fingerprint = fp
	r.mu.Unlock()
}

// LoadAndApply loads the file, diffs it against the store and applies
// the changes. Returns false when the file could not be loaded.
func (r *Reconciler) LoadAndApply() bool {
	cfg, err := r.file.Load()
	if err != nil {
		r.logger.Error("config reload failed, keeping current pin set", "error", err)
		r.store.Warn("config reload failed: %v", err)
		return false
	}

	d := Compute(r.store.Configs(), cfg.Pins)
	for _, c := range d.Add {
		if _, err := r.store.Upsert(c); err != nil {
			r.logger.Warn("reconcile add rejected", "pin", c.Pin, "error", err)
		}
	}
	for _, c := range d.Update {
		if _, err := r.store.Upsert(c); err != nil {
			r.logger.Warn("reconcile update rejected", "pin", c.Pin, "error", err)
		}
	}
	for _, p := range d.Remove {
		r.store.Remove(p)
	}
	if !d.Empty() {
		r.logger.Info("pin set reconciled",
			"added", len(d.Add),
			"updated", len(d.Update),
			"removed", len(d.Remove),
		)
	}

	// a persisted port change is surfaced, never silently applied
	if cfg.Port != r.runningPort {
		if !r.store.RestartRequired() {
			r.logger.Warn("configured port differs from running port, restart required",
				"configured", cfg.Port,
				"running", r.runningPort,
			)
			r.store.Warn("port changed to %d in config, restart required (running on %d)", cfg.Port, r.runningPort)
		}
		r.store.SetRestartRequired(true)
	} else {
		r.store.SetRestartRequired(false)
	}
	return true
}
