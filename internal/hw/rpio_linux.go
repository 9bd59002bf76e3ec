//go:build linux

package hw

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// memMapReader samples pins through /dev/gpiomem memory-mapped registers.
// Reads are sub-microsecond, which keeps a full sweep far inside the
// sampling period even with every header pin monitored.
type memMapReader struct {
	mu sync.Mutex
	// last bias applied per pin, to skip redundant register writes
	bias map[int]pin.Pull
}

func newMemMapReader() (Reader, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory map: %w", err)
	}
	return &memMapReader{bias: make(map[int]pin.Pull)}, nil
}

func (r *memMapReader) ReadLevel(p int, pull pin.Pull) (pin.Level, error) {
	if p < 0 || p > pin.MaxNumber {
		return pin.Unknown, fmt.Errorf("pin %d out of range 0..%d", p, pin.MaxNumber)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if pull == "" {
		pull = pin.PullNone
	}

	rp := rpio.Pin(p)
	rp.Input()
	if r.bias[p] != pull {
		switch pull {
		case pin.PullUp:
			rp.PullUp()
		case pin.PullDown:
			rp.PullDown()
		default:
			rp.PullOff()
		}
		r.bias[p] = pull
	}

	if rp.Read() == rpio.High {
		return pin.High, nil
	}
	return pin.Low, nil
}

func (r *memMapReader) Close() error {
	return rpio.Close()
}
