// Package bytechan carries single bytes from the serial receive goroutine to
// the command processor.
//
// The producer side is a single non-blocking, allocation-free Push per byte.
// The consumer side blocks with a bounded timeout so the caller can run its
// housekeeping without polling. Exactly one producer and one consumer.
package bytechan

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultSize is the ring capacity used by the daemon.
const DefaultSize = 128

// DefaultHighWater is the occupancy above which the consumer warns once.
const DefaultHighWater = 64

// Channel is a single-producer, single-consumer byte ring.
type Channel struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{}

	highWater int
	warned    atomic.Bool
	overruns  atomic.Uint64
}

// New creates a Channel. size must be a power of two >= 2.
func New(size, highWater int) *Channel {
	if size < 2 || (size&(size-1)) != 0 {
		panic("bytechan: size must be power of two >= 2")
	}
	if highWater <= 0 || highWater > size {
		highWater = size / 2
	}
	return &Channel{
		buf:       make([]byte, size),
		mask:      uint32(size - 1),
		readable:  make(chan struct{}, 1),
		highWater: highWater,
	}
}

// Cap returns the ring capacity.
func (c *Channel) Cap() int { return len(c.buf) }

// Len returns the number of bytes waiting for the consumer.
func (c *Channel) Len() int {
	return int(c.wr.Load() - c.rd.Load())
}

// Overruns returns how many bytes Push rejected because the ring was full.
func (c *Channel) Overruns() uint64 { return c.overruns.Load() }

// Push stores b without blocking. It returns false if the ring is full.
// Producer side only.
func (c *Channel) Push(b byte) bool {
	rd := c.rd.Load()
	wr := c.wr.Load()
	if wr-rd >= uint32(len(c.buf)) {
		c.overruns.Add(1)
		return false
	}
	c.buf[wr&c.mask] = b
	c.wr.Store(wr + 1) // release

	select {
	case c.readable <- struct{}{}:
	default:
	}
	return true
}

// TryReceive pops one byte if available. Consumer side only.
func (c *Channel) TryReceive() (byte, bool) {
	rd := c.rd.Load()
	wr := c.wr.Load() // acquire
	if wr == rd {
		return 0, false
	}
	b := c.buf[rd&c.mask]
	c.rd.Store(rd + 1)
	return b, true
}

// Receive waits up to timeout for a byte. It returns false on timeout or
// when ctx is done. Consumer side only.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (byte, bool) {
	if b, ok := c.TryReceive(); ok {
		return b, true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-c.readable:
			if b, ok := c.TryReceive(); ok {
				return b, true
			}
		case <-t.C:
			return c.TryReceive()
		case <-ctx.Done():
			return 0, false
		}
	}
}

// CheckHighWater reports true the first time occupancy exceeds the
// high-water mark. Later calls return false; the warning is latched.
func (c *Channel) CheckHighWater() bool {
	if c.Len() <= c.highWater {
		return false
	}
	return c.warned.CompareAndSwap(false, true)
}
