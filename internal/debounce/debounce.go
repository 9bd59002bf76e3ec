// Package debounce implements the per-pin stable-state decision logic.
//
// Each Engine keeps a rolling window of the most recent raw samples and
// decides, once per sample, whether the pin's stable level has changed.
// The engine is pure state-machine logic with no clock, no hardware and
// no locking; the caller owns synchronization and timing.
package debounce

import "github.com/WIPtitle/gpio-monitor/internal/pin"

// Engine is the debounce state machine for a single pin.
//
// The engine requires a warm-up: no transition is emitted until the
// window has accumulated pin.WindowSize samples. Until then the stable
// level is pin.Unknown. Reconfiguring thresholds must go through Reset,
// which discards the window and restarts the warm-up, because samples
// collected under the old parameters are not valid evidence for the new
// ones.
type Engine struct {
	lowThreshold  int
	highThreshold int

	window [pin.WindowSize]pin.Level
	next   int // ring write position
	filled int

	stable pin.Level
}

// New creates an Engine with the given asymmetric thresholds.
// Thresholds outside 0..pin.WindowSize are the caller's validation bug;
// the engine uses them as given.
func New(lowThreshold, highThreshold int) *Engine {
	return &Engine{
		lowThreshold:  lowThreshold,
		highThreshold: highThreshold,
		stable:        pin.Unknown,
	}
}

// Stable returns the current confirmed level.
func (e *Engine) Stable() pin.Level {
	return e.stable
}

// WarmedUp reports whether the window holds a full set of samples.
func (e *Engine) WarmedUp() bool {
	return e.filled == pin.WindowSize
}

// Feed appends a raw sample and evaluates the window.
//
// It returns the new stable level and true when the sample confirms a
// transition. At most one transition can fire per sample: low and high
// counts share the window, and the low comparison is evaluated first,
// which also makes the degenerate both-thresholds-zero case
// deterministic.
func (e *Engine) Feed(raw pin.Level) (pin.Level, bool) {
	e.window[e.next] = raw
	e.next = (e.next + 1) % pin.WindowSize
	if e.filled < pin.WindowSize {
		e.filled++
	}

	if !e.WarmedUp() {
		return e.stable, false
	}

	lowCount := 0
	for _, s := range e.window {
		if s == pin.Low {
			lowCount++
		}
	}
	highCount := pin.WindowSize - lowCount

	if e.stable != pin.Low && lowCount > e.lowThreshold {
		e.stable = pin.Low
		return pin.Low, true
	}
	if e.stable != pin.High && highCount > e.highThreshold {
		e.stable = pin.High
		return pin.High, true
	}

	// hysteresis region: neither threshold exceeded, state holds
	return e.stable, false
}

// Reset discards the window and returns the engine to the warm-up phase
// with the given thresholds. Entering Unknown is not a transition and
// must not be reported as one.
func (e *Engine) Reset(lowThreshold, highThreshold int) {
	e.lowThreshold = lowThreshold
	e.highThreshold = highThreshold
	e.next = 0
	e.filled = 0
	e.stable = pin.Unknown
}

// Window returns the raw samples currently held, oldest first. Used for
// status reporting; the returned slice is a copy.
func (e *Engine) Window() []pin.Level {
	out := make([]pin.Level, 0, e.filled)
	if e.filled < pin.WindowSize {
		for i := 0; i < e.filled; i++ {
			out = append(out, e.window[i])
		}
		return out
	}
	for i := 0; i < pin.WindowSize; i++ {
		out = append(out, e.window[(e.next+i)%pin.WindowSize])
	}
	return out
}
