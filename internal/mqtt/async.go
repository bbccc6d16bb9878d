package mqtt

import (
	"context"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/sweeney/ledlink/internal/protocol"
)

// DefaultQueueSize bounds events waiting for the publish goroutine.
const DefaultQueueSize = 32

// Async forwards notable controller events to a Publisher from its own
// goroutine. Notify never blocks; events are dropped when the queue is full.
type Async struct {
	pub     Publisher
	q       chan protocol.Event
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync creates an Async with a queue of size events.
func NewAsync(pub Publisher, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Async{pub: pub, q: make(chan protocol.Event, size)}
}

// Notify queues ev if it is notable.
func (a *Async) Notify(ev protocol.Event) {
	if !ev.Type.Notable() {
		return
	}
	select {
	case a.q <- ev:
	default:
		if a.dropped.Add(1) == 1 {
			glog.Warningf("mqtt: event queue full, dropping %s", ev.Type)
		}
	}
}

// Run publishes queued events until ctx is done, then flushes the queue.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.q:
					a.publish(ev)
				default:
					return
				}
			}
		case ev := <-a.q:
			a.publish(ev)
		}
	}
}

func (a *Async) publish(ev protocol.Event) {
	if err := a.pub.Publish(ev); err != nil {
		a.failed.Add(1)
		glog.Errorf("mqtt: publish %s: %v", ev.Type, err)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Failed returns how many publishes returned an error.
func (a *Async) Failed() uint64 { return a.failed.Load() }
