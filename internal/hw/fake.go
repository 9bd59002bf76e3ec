package hw

import (
	"sync"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// Fake is a test double returning scripted or manually-set levels.
// It is safe for concurrent use so tests can drive it while the sampler
// reads from it. It also backs the "mock" backend for hardware-less runs.
type Fake struct {
	mu sync.Mutex

	levels  map[int]pin.Level
	scripts map[int][]pin.Level

	// Err, if set, is returned by every ReadLevel call.
	Err error

	// Delay, if set, makes ReadLevel block before returning; used to
	// exercise read-deadline handling.
	Delay func()

	reads  map[int]int
	closed bool
}

// NewFake creates a Fake with every pin reading low.
func NewFake() *Fake {
	return &Fake{
		levels:  make(map[int]pin.Level),
		scripts: make(map[int][]pin.Level),
		reads:   make(map[int]int),
	}
}

// Set pins the level returned for a pin until changed again.
func (f *Fake) Set(p int, level pin.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[p] = level
	delete(f.scripts, p)
}

// Script queues a sequence of levels for a pin; each read consumes one.
// Once exhausted, the last scripted level keeps being returned.
func (f *Fake) Script(p int, seq ...pin.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[p] = append([]pin.Level(nil), seq...)
}

// Reads returns how many times a pin has been sampled.
func (f *Fake) Reads(p int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[p]
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) ReadLevel(p int, _ pin.Pull) (pin.Level, error) {
	f.mu.Lock()
	delay := f.Delay
	f.mu.Unlock()
	if delay != nil {
		delay()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return pin.Unknown, f.Err
	}
	f.reads[p]++

	if seq, ok := f.scripts[p]; ok && len(seq) > 0 {
		level := seq[0]
		if len(seq) > 1 {
			f.scripts[p] = seq[1:]
		} else {
			f.levels[p] = level
			delete(f.scripts, p)
		}
		return level, nil
	}

	if level, ok := f.levels[p]; ok {
		return level, nil
	}
	return pin.Low, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
