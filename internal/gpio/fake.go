package gpio

import (
	"fmt"
	"sync"
)

// Change records one write to a FakeWriter.
type Change struct {
	Out    Output
	On     bool
	Toggle bool
}

// FakeWriter is a test double that records output writes. It is safe for
// concurrent use because toggles come from the timer goroutine.
type FakeWriter struct {
	mu      sync.Mutex
	levels  [NumOutputs]bool
	toggles [NumOutputs]int
	history []Change
	closed  bool

	// SetError, if set, is returned by Set and Toggle.
	SetError error
}

// NewFakeWriter creates a FakeWriter with both outputs off.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Set records the level.
func (f *FakeWriter) Set(out Output, on bool) error {
	if !out.Valid() {
		return fmt.Errorf("gpio: invalid output %v", out)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels[out] = on
	f.history = append(f.history, Change{Out: out, On: on})
	return nil
}

// Toggle inverts the recorded level.
func (f *FakeWriter) Toggle(out Output) error {
	if !out.Valid() {
		return fmt.Errorf("gpio: invalid output %v", out)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.levels[out] = !f.levels[out]
	f.toggles[out]++
	f.history = append(f.history, Change{Out: out, On: f.levels[out], Toggle: true})
	return nil
}

// Level returns the recorded level.
func (f *FakeWriter) Level(out Output) bool {
	if !out.Valid() {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[out]
}

// Toggles returns how many times out was toggled.
func (f *FakeWriter) Toggles(out Output) int {
	if !out.Valid() {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.toggles[out]
}

// History returns a copy of all recorded writes.
func (f *FakeWriter) History() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Change(nil), f.history...)
}

// Closed reports whether Close was called.
func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close turns both outputs off and marks the writer closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = [NumOutputs]bool{}
	f.closed = true
	return nil
}

// Reset clears recorded writes and levels.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = [NumOutputs]bool{}
	f.toggles = [NumOutputs]int{}
	f.history = nil
	f.closed = false
	f.SetError = nil
}
