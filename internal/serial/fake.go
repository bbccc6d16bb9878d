package serial

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

// FakePort is a test double for a serial device. Inbound bytes are queued
// with Inject; outbound bytes are recorded.
type FakePort struct {
	mu     sync.Mutex
	in     []byte
	out    bytes.Buffer
	closed bool
	avail  chan struct{}

	// ReadTimeout bounds a Read with no data; it then returns (0, nil)
	// like a real port with a read timeout.
	ReadTimeout time.Duration

	// FailWrites makes the next N writes fail with WriteError.
	FailWrites int
	WriteError error
	writes     int
}

// NewFakePort creates an open fake port.
func NewFakePort() *FakePort {
	return &FakePort{
		avail:       make(chan struct{}, 1),
		ReadTimeout: 5 * time.Millisecond,
		WriteError:  errors.New("serial: simulated write failure"),
	}
}

// Inject queues bytes for Read.
func (f *FakePort) Inject(s string) {
	f.mu.Lock()
	f.in = append(f.in, s...)
	f.mu.Unlock()
	select {
	case f.avail <- struct{}{}:
	default:
	}
}

// Read returns queued bytes, waiting at most ReadTimeout.
func (f *FakePort) Read(p []byte) (int, error) {
	if n, err, ok := f.take(p); ok {
		return n, err
	}
	select {
	case <-f.avail:
	case <-time.After(f.ReadTimeout):
	}
	n, err, _ := f.take(p)
	return n, err
}

func (f *FakePort) take(p []byte) (int, error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed, true
	}
	if len(f.in) == 0 {
		return 0, nil, false
	}
	n := copy(p, f.in)
	f.in = f.in[n:]
	return n, nil, true
}

// Write records p unless a failure is scheduled.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.closed {
		return 0, ErrClosed
	}
	if f.FailWrites > 0 {
		f.FailWrites--
		return 0, f.WriteError
	}
	return f.out.Write(p)
}

// SetFailWrites schedules the next n writes to fail.
func (f *FakePort) SetFailWrites(n int) {
	f.mu.Lock()
	f.FailWrites = n
	f.mu.Unlock()
}

// Writes returns the number of Write calls, including failed ones.
func (f *FakePort) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// Written returns everything written so far.
func (f *FakePort) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

// Lines returns written output split on CRLF, without the empty tail.
func (f *FakePort) Lines() []string {
	s := f.Written()
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, Terminator), Terminator)
}

// Reset discards recorded output.
func (f *FakePort) Reset() {
	f.mu.Lock()
	f.out.Reset()
	f.writes = 0
	f.mu.Unlock()
}

// Close makes further reads and writes fail.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	select {
	case f.avail <- struct{}{}:
	default:
	}
	return nil
}
