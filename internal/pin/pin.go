// Package pin defines the domain types shared across the monitor:
// logic levels, pull-resistor modes, per-pin configuration and the
// transition event emitted when a debounced state change is confirmed.
//
// The package is deliberately dependency-free so that hardware, storage
// and transport packages can all build on it without import cycles.
package pin

import (
	"fmt"
	"time"
)

// Level is the logic level of a GPIO input.
type Level string

const (
	// Low is a confirmed logical low.
	Low Level = "low"
	// High is a confirmed logical high.
	High Level = "high"
	// Unknown is the level of a pin that has not yet completed its
	// debounce warm-up. It never appears in a transition event.
	Unknown Level = "unknown"
)

// Pull is the pull-resistor bias applied when reading a pin.
type Pull string

const (
	PullUp   Pull = "up"
	PullDown Pull = "down"
	PullNone Pull = "none"
)

// MaxNumber is the highest BCM pin number on the 40-pin Raspberry Pi
// header. Pins are addressed 0..MaxNumber.
const MaxNumber = 27

// WindowSize is the number of raw samples the debounce window holds.
// Together with the 100ms sampling period this bounds the worst-case
// confirmation delay at one second.
const WindowSize = 10

// Config identifies a monitored pin and its per-pin parameters.
//
// DebounceLow and DebounceHigh are asymmetric thresholds in 0..WindowSize:
// a transition to a level fires once the window contains strictly more
// than the threshold's count of samples at that level. Zero means no
// debouncing beyond the warm-up (a single sample in a warmed window is
// enough to flip).
type Config struct {
	Pin          int  `json:"pin"`
	Pull         Pull `json:"pull"`
	DebounceLow  int  `json:"debounce_low"`
	DebounceHigh int  `json:"debounce_high"`
}

// Validate reports the first problem with the configuration, or nil.
func (c Config) Validate() error {
	if c.Pin < 0 || c.Pin > MaxNumber {
		return fmt.Errorf("pin %d out of range 0..%d", c.Pin, MaxNumber)
	}
	switch c.Pull {
	case PullUp, PullDown, PullNone:
	case "":
		// treated as none by the readers
	default:
		return fmt.Errorf("pin %d: pull must be %q, %q or %q, got %q", c.Pin, PullUp, PullDown, PullNone, c.Pull)
	}
	if c.DebounceLow < 0 || c.DebounceLow > WindowSize {
		return fmt.Errorf("pin %d: debounce_low must be 0..%d, got %d", c.Pin, WindowSize, c.DebounceLow)
	}
	if c.DebounceHigh < 0 || c.DebounceHigh > WindowSize {
		return fmt.Errorf("pin %d: debounce_high must be 0..%d, got %d", c.Pin, WindowSize, c.DebounceHigh)
	}
	return nil
}

// Equal reports whether two configs describe the same pin with the same
// parameters. Empty and explicit "none" pulls compare equal.
func (c Config) Equal(o Config) bool {
	return c.Pin == o.Pin &&
		normalizePull(c.Pull) == normalizePull(o.Pull) &&
		c.DebounceLow == o.DebounceLow &&
		c.DebounceHigh == o.DebounceHigh
}

func normalizePull(p Pull) Pull {
	if p == "" {
		return PullNone
	}
	return p
}

// Event is a confirmed stable-state transition. It is deliberately small;
// clients needing full pin configuration refetch it over the REST API.
type Event struct {
	Pin       int       `json:"pin"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is one entry of a pin's bounded recent-transition log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
}

// reserved maps pins with a platform-defined special function to a short
// description. Monitoring them is allowed but produces a warning.
var reserved = map[int]string{
	0:  "ID_SD (HAT EEPROM)",
	1:  "ID_SC (HAT EEPROM)",
	2:  "SDA1 (I2C)",
	3:  "SCL1 (I2C)",
	14: "TXD0 (UART)",
	15: "RXD0 (UART)",
}

// ReservedFunction returns the special hardware function of a pin, if any.
func ReservedFunction(pin int) (string, bool) {
	fn, ok := reserved[pin]
	return fn, ok
}

// Reserved returns a copy of the full reserved-pin table, keyed by pin.
func Reserved() map[int]string {
	out := make(map[int]string, len(reserved))
	for p, fn := range reserved {
		out[p] = fn
	}
	return out
}
