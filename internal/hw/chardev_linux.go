//go:build linux

package hw

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/WIPtitle/gpio-monitor/internal/pin"
)

// chardevReader samples pins through the Linux GPIO character device.
// Slower than the memory-mapped backend but works on any kernel with
// /dev/gpiochip0 and does not require /dev/gpiomem access.
type chardevReader struct {
	chip *gpiocdev.Chip

	mu sync.Mutex
	// requested lines are cached per (pin, bias) and re-requested when
	// the configured pull changes
	lines map[int]*requestedLine
}

type requestedLine struct {
	line *gpiocdev.Line
	bias pin.Pull
}

func newChardevReader() (Reader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &chardevReader{
		chip:  chip,
		lines: make(map[int]*requestedLine),
	}, nil
}

func biasOption(pull pin.Pull) gpiocdev.LineReqOption {
	switch pull {
	case pin.PullUp:
		return gpiocdev.WithPullUp
	case pin.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func (r *chardevReader) ReadLevel(p int, pull pin.Pull) (pin.Level, error) {
	if p < 0 || p > pin.MaxNumber {
		return pin.Unknown, fmt.Errorf("pin %d out of range 0..%d", p, pin.MaxNumber)
	}
	if pull == "" {
		pull = pin.PullNone
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rl, ok := r.lines[p]
	if ok && rl.bias != pull {
		rl.line.Close()
		delete(r.lines, p)
		ok = false
	}
	if !ok {
		line, err := r.chip.RequestLine(p, gpiocdev.AsInput, biasOption(pull))
		if err != nil {
			return pin.Unknown, fmt.Errorf("request pin %d: %w", p, err)
		}
		rl = &requestedLine{line: line, bias: pull}
		r.lines[p] = rl
	}

	v, err := rl.line.Value()
	if err != nil {
		return pin.Unknown, fmt.Errorf("read pin %d: %w", p, err)
	}
	if v != 0 {
		return pin.High, nil
	}
	return pin.Low, nil
}

func (r *chardevReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for p, rl := range r.lines {
		if err := rl.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", p, err))
		}
	}
	r.lines = make(map[int]*requestedLine)
	if err := r.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
