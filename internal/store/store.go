// Package store holds the authoritative record of every monitored pin:
// its configuration and its last-known debounced state.
//
// The store is the only mutable state shared between the sampler loop,
// the config reconciler and the HTTP control surface, so every operation
// is safe for concurrent use and snapshots are consistent point-in-time
// copies. Configuration mutations (Upsert/Remove) and runtime mutations
// (Feed, which is the sampler's exclusive path) are kept separate: what
// is configured never gets conflated with what has been observed.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WIPtitle/gpio-monitor/internal/debounce"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

const (
	// recentLogCap bounds the per-pin transition log. Troubleshooting
	// aid only, not a durability guarantee.
	recentLogCap = 16

	// warningsCap bounds the service-wide warning log surfaced by the
	// status endpoint.
	warningsCap = 32
)

// Status is a consistent copy of one monitored pin, as exposed by the
// list and status endpoints.
type Status struct {
	pin.Config
	StableLevel  pin.Level      `json:"stable_level"`
	LastChangeAt *time.Time     `json:"last_change_at,omitempty"`
	RecentLog    []pin.LogEntry `json:"recent_log,omitempty"`
	Reserved     string         `json:"reserved,omitempty"`
}

// Warning is one entry of the bounded service warning log.
type Warning struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

type monitoredPin struct {
	cfg        pin.Config
	engine     *debounce.Engine
	lastChange time.Time
	recentLog  []pin.LogEntry
}

// Store is the concurrency-safe pin state store.
type Store struct {
	mu   sync.RWMutex
	pins map[int]*monitoredPin

	warnMu          sync.Mutex
	warnings        []Warning
	restartRequired bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{pins: make(map[int]*monitoredPin)}
}

// Upsert inserts or replaces a pin's configuration.
//
// Replacing a configuration resets the pin's runtime state: the debounce
// window is cleared and the stable level returns to Unknown, because
// samples collected under the old parameters are not valid evidence for
// the new ones. Upserting a configuration identical to the current one
// is a no-op, which keeps the operation idempotent and lets the
// reconciler re-apply the file without disturbing warmed-up pins.
//
// Reserved pins are accepted; the returned warning names their special
// function and is also recorded in the warning log.
func (s *Store) Upsert(cfg pin.Config) (warning string, err error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	existing, ok := s.pins[cfg.Pin]
	if ok && existing.cfg.Equal(cfg) {
		s.mu.Unlock()
		return "", nil
	}
	s.pins[cfg.Pin] = &monitoredPin{
		cfg:    cfg,
		engine: debounce.New(cfg.DebounceLow, cfg.DebounceHigh),
	}
	s.mu.Unlock()

	if fn, reserved := pin.ReservedFunction(cfg.Pin); reserved {
		warning = fmt.Sprintf("pin %d has special function %s", cfg.Pin, fn)
		s.Warn("%s", warning)
	}
	return warning, nil
}

// Remove deletes a pin from the monitored set. Removing an absent pin is
// a no-op; the sampler simply stops sweeping it on the next tick.
func (s *Store) Remove(p int) {
	s.mu.Lock()
	delete(s.pins, p)
	s.mu.Unlock()
}

// Clear removes every monitored pin.
func (s *Store) Clear() {
	s.mu.Lock()
	s.pins = make(map[int]*monitoredPin)
	s.mu.Unlock()
}

// Configs returns the monitored pin configurations in ascending pin
// order. This is the stable per-tick snapshot the sampler sweeps and the
// set the reconciler diffs against the file.
func (s *Store) Configs() []pin.Config {
	s.mu.RLock()
	out := make([]pin.Config, 0, len(s.pins))
	for _, mp := range s.pins {
		out = append(out, mp.cfg)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// Snapshot returns a consistent copy of every monitored pin, ascending
// by pin number. No entry is ever observed half-updated.
func (s *Store) Snapshot() []Status {
	s.mu.RLock()
	out := make([]Status, 0, len(s.pins))
	for _, mp := range s.pins {
		out = append(out, mp.status())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// Get returns the status of a single pin.
func (s *Store) Get(p int) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mp, ok := s.pins[p]
	if !ok {
		return Status{}, false
	}
	return mp.status(), true
}

// Len returns the number of monitored pins.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pins)
}

// Feed drives a pin's debounce engine with one raw sample and, when the
// sample confirms a transition, applies it to the runtime state and
// returns the event to broadcast.
//
// Feed is the sampler loop's exclusive path; nothing else mutates stable
// levels. Feeding a pin that was removed mid-tick is a harmless no-op.
func (s *Store) Feed(p int, raw pin.Level, now time.Time) (pin.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mp, ok := s.pins[p]
	if !ok {
		return pin.Event{}, false
	}

	level, changed := mp.engine.Feed(raw)
	if !changed {
		return pin.Event{}, false
	}
	return mp.applyTransition(level, now), true
}

// applyTransition records a confirmed transition. Caller holds s.mu.
func (mp *monitoredPin) applyTransition(level pin.Level, now time.Time) pin.Event {
	mp.lastChange = now
	mp.recentLog = append(mp.recentLog, pin.LogEntry{Timestamp: now, Level: level})
	if len(mp.recentLog) > recentLogCap {
		mp.recentLog = mp.recentLog[len(mp.recentLog)-recentLogCap:]
	}
	return pin.Event{Pin: mp.cfg.Pin, Level: level, Timestamp: now}
}

func (mp *monitoredPin) status() Status {
	st := Status{
		Config:      mp.cfg,
		StableLevel: mp.engine.Stable(),
		RecentLog:   append([]pin.LogEntry(nil), mp.recentLog...),
	}
	if !mp.lastChange.IsZero() {
		t := mp.lastChange
		st.LastChangeAt = &t
	}
	if fn, ok := pin.ReservedFunction(mp.cfg.Pin); ok {
		st.Reserved = fn
	}
	return st
}

// Warn appends a formatted entry to the bounded warning log.
func (s *Store) Warn(format string, args ...any) {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()

	s.warnings = append(s.warnings, Warning{
		Time:    time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
	if len(s.warnings) > warningsCap {
		s.warnings = s.warnings[len(s.warnings)-warningsCap:]
	}
}

// Warnings returns a copy of the recent warning log, oldest first.
func (s *Store) Warnings() []Warning {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	return append([]Warning(nil), s.warnings...)
}

// SetRestartRequired flags that a persisted change (the listen port)
// cannot be applied without a restart.
func (s *Store) SetRestartRequired(v bool) {
	s.warnMu.Lock()
	s.restartRequired = v
	s.warnMu.Unlock()
}

// RestartRequired reports whether a restart-required condition is set.
func (s *Store) RestartRequired() bool {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	return s.restartRequired
}
