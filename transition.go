package gpiomonitor

import "time"

// Level represents a debounced GPIO pin level.
//
// Level is a string type that holds one of three predefined values:
// [LevelLow], [LevelHigh], or [LevelUnknown]. Using a string type allows
// for easy JSON serialization and human-readable logging while
// maintaining type safety through the defined constants.
type Level string

const (
	// LevelLow indicates the pin reads a confirmed logic low.
	LevelLow Level = "low"

	// LevelHigh indicates the pin reads a confirmed logic high.
	LevelHigh Level = "high"

	// LevelUnknown indicates the pin has not yet produced a confirmed
	// level. Pins report unknown during the warm-up window after being
	// added or reconfigured.
	LevelUnknown Level = "unknown"
)

// String returns the string representation of the level.
// This implements the fmt.Stringer interface.
func (l Level) String() string {
	return string(l)
}

// Transition holds a confirmed pin level change.
//
// Transition is immutable after creation. It is delivered to callbacks
// registered with [WithTransitionCallback] in confirmation order, after
// the change has been applied to the monitor's state.
type Transition struct {
	// Pin is the BCM pin number that changed.
	Pin int

	// Level is the newly confirmed level.
	Level Level

	// Timestamp is when the transition was confirmed, in UTC.
	Timestamp time.Time
}
