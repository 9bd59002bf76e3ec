// Package hw abstracts access to the GPIO hardware.
//
// Two real backends are provided on Linux: a memory-mapped one built on
// go-rpio and a character-device one built on go-gpiocdev. Both apply the
// requested pull-resistor bias before sampling. The Fake reader allows
// the rest of the system to be exercised without hardware.
package hw

import (
	"fmt"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// Reader reads the instantaneous logic level of a pin.
//
// Implementations must be fast: a read is expected to complete in well
// under the sampling period. Callers enforce an external deadline and
// treat an overdue read as a missed sample.
type Reader interface {
	// ReadLevel samples the pin with the given pull bias applied.
	ReadLevel(p int, pull pin.Pull) (pin.Level, error)

	// Close releases hardware resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemMap  = "rpio"    // memory-mapped registers via go-rpio
	BackendChardev = "chardev" // /dev/gpiochip0 via go-gpiocdev
	BackendMock    = "mock"    // scripted fake, no hardware
)

// Open creates the Reader for the named backend. The mock backend starts
// with every pin reading low.
func Open(backend string) (Reader, error) {
	switch backend {
	case BackendMemMap:
		return newMemMapReader()
	case BackendChardev:
		return newChardevReader()
	case BackendMock:
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q (expected %q, %q or %q)",
			backend, BackendMemMap, BackendChardev, BackendMock)
	}
}
