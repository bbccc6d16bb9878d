// Package logsink serializes diagnostic text from many goroutines onto one
// output in FIFO order.
package logsink

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sweeney/ledlink/internal/watchdog"
)

// Limits and timings of the sink.
const (
	MaxMessageSize = 256 // including the terminating byte of the wire form
	DefaultDepth   = 5
	EnqueueTimeout = 100 * time.Millisecond
	ReceiveTimeout = 2 * time.Second
	WatchdogName   = "log-sink"
	WatchdogLimit  = 5 * time.Second
)

// Watchdog is the subset of the liveness registry the consumer uses.
type Watchdog interface {
	Register(name string, timeout time.Duration) watchdog.ID
	Feed(id watchdog.ID)
}

// Sink is a bounded message queue with a single consumer. A nil *Sink
// accepts nothing.
type Sink struct {
	q          chan string
	out        io.Writer
	terminator string
	timeout    time.Duration
	recvWait   time.Duration

	writeErrors atomic.Uint64
}

// New creates a sink writing to out. Each message is followed by terminator.
func New(out io.Writer, depth int, terminator string) *Sink {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Sink{
		q:          make(chan string, depth),
		out:        out,
		terminator: terminator,
		timeout:    EnqueueTimeout,
		recvWait:   ReceiveTimeout,
	}
}

// Print enqueues msg, waiting at most the enqueue timeout for space.
// Messages longer than MaxMessageSize-1 bytes are truncated. It reports
// false if the sink is nil or stayed full.
func (s *Sink) Print(msg string) bool {
	if s == nil {
		return false
	}
	if len(msg) > MaxMessageSize-1 {
		msg = msg[:MaxMessageSize-1]
	}

	select {
	case s.q <- msg:
		return true
	default:
	}

	t := time.NewTimer(s.timeout)
	defer t.Stop()
	select {
	case s.q <- msg:
		return true
	case <-t.C:
		return false
	}
}

// TryPrint enqueues msg only if there is space right now. Callers that
// must not block, such as timer callbacks, use it instead of Print.
func (s *Sink) TryPrint(msg string) bool {
	if s == nil {
		return false
	}
	if len(msg) > MaxMessageSize-1 {
		msg = msg[:MaxMessageSize-1]
	}
	select {
	case s.q <- msg:
		return true
	default:
		return false
	}
}

// TryPrintf formats and enqueues a message without waiting.
func (s *Sink) TryPrintf(format string, args ...any) bool {
	return s.TryPrint(fmt.Sprintf(format, args...))
}

// Printf formats and enqueues a message.
func (s *Sink) Printf(format string, args ...any) {
	s.Print(fmt.Sprintf(format, args...))
}

// Pending returns the number of queued messages.
func (s *Sink) Pending() int {
	if s == nil {
		return 0
	}
	return len(s.q)
}

// Run consumes the queue until ctx is done. It registers with wd (if not
// nil) and feeds it after every receive or receive timeout. Queued messages
// are flushed before returning.
func (s *Sink) Run(ctx context.Context, wd Watchdog) {
	id := watchdog.InvalidID
	if wd != nil {
		id = wd.Register(WatchdogName, WatchdogLimit)
	}
	s.write("[LOG] Debug logging initialized")

	timer := time.NewTimer(s.recvWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case msg := <-s.q:
			s.write(msg)
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.recvWait)

		if wd != nil && id != watchdog.InvalidID {
			wd.Feed(id)
		}
	}
}

func (s *Sink) drain() {
	for {
		select {
		case msg := <-s.q:
			s.write(msg)
		default:
			return
		}
	}
}

func (s *Sink) write(msg string) {
	if _, err := io.WriteString(s.out, msg+s.terminator); err != nil {
		s.writeErrors.Add(1)
	}
}

// WriteErrors returns how many messages the output rejected.
func (s *Sink) WriteErrors() uint64 {
	if s == nil {
		return 0
	}
	return s.writeErrors.Load()
}
