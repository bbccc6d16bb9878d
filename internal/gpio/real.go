//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives outputs on actual hardware using the Linux GPIO character device.
type RealWriter struct {
	chip   *gpiocdev.Chip
	lines  [NumOutputs]*gpiocdev.Line
	mu     sync.Mutex
	levels [NumOutputs]bool
}

// NewRealWriter requests both lines as outputs, initially off.
func NewRealWriter(chipName string, pinA, pinB int) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lineA, err := chip.RequestLine(pinA, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output A pin %d: %w", pinA, err)
	}

	lineB, err := chip.RequestLine(pinB, gpiocdev.AsOutput(0))
	if err != nil {
		lineA.Close()
		chip.Close()
		return nil, fmt.Errorf("request output B pin %d: %w", pinB, err)
	}

	return &RealWriter{
		chip:  chip,
		lines: [NumOutputs]*gpiocdev.Line{lineA, lineB},
	}, nil
}

// Set drives the output level.
func (r *RealWriter) Set(out Output, on bool) error {
	if !out.Valid() {
		return fmt.Errorf("gpio: invalid output %v", out)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(out, on)
}

// Toggle inverts the output level.
func (r *RealWriter) Toggle(out Output) error {
	if !out.Valid() {
		return fmt.Errorf("gpio: invalid output %v", out)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.write(out, !r.levels[out])
}

// Level returns the last level written.
func (r *RealWriter) Level(out Output) bool {
	if !out.Valid() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[out]
}

func (r *RealWriter) write(out Output, on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.lines[out].SetValue(v); err != nil {
		return fmt.Errorf("set output %v: %w", out, err)
	}
	r.levels[out] = on
	return nil
}

// Close releases GPIO resources.
// Drives both outputs off, then reconfigures the lines as inputs with
// pull-down (matching Pi boot defaults) before closing.
func (r *RealWriter) Close() error {
	var errs []error

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, line := range r.lines {
		if line == nil {
			continue
		}
		out := Output(i)
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear output %v: %w", out, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output %v: %w", out, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output %v: %w", out, err))
		}
		r.levels[i] = false
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
