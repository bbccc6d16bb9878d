// Package softtimer runs auto-reload software timers on a single service
// goroutine.
//
// Timer callbacks execute on the service goroutine and must stay short and
// non-blocking. Start, Stop, ChangePeriod and Pend are requests queued to
// that goroutine; they are applied in submission order and fail with
// ErrQueueFull when the queue cannot take them within the enqueue wait.
package softtimer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned when a request could not be queued in time.
var ErrQueueFull = errors.New("softtimer: request queue full")

// ErrStopped is returned once the service goroutine has exited.
var ErrStopped = errors.New("softtimer: service stopped")

// ErrBadPeriod is returned for a non-positive period.
var ErrBadPeriod = errors.New("softtimer: period must be positive")

// DefaultQueueLen matches the depth of a typical RTOS timer command queue.
const DefaultQueueLen = 10

type opKind int

const (
	opStart opKind = iota
	opStop
	opPeriod
	opCall
)

type request struct {
	op     opKind
	timer  *Timer
	period time.Duration
	fn     func()
}

// Service owns every Timer created from it.
type Service struct {
	reqs chan request
	wait time.Duration
	now  func() time.Time

	mu     sync.Mutex
	timers []*Timer

	hbEvery time.Duration
	hbFn    func()

	done     chan struct{}
	doneOnce sync.Once
}

// NewService creates a service whose request queue holds queueLen entries.
// wait bounds how long a request may block for queue space; 0 never blocks.
func NewService(queueLen int, wait time.Duration) *Service {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &Service{
		reqs: make(chan request, queueLen),
		wait: wait,
		now:  time.Now,
		done: make(chan struct{}),
	}
}

// SetHeartbeat arranges for fn to run on the service goroutine every
// interval, independent of timer activity. Call before Run.
func (s *Service) SetHeartbeat(every time.Duration, fn func()) {
	s.hbEvery = every
	s.hbFn = fn
}

// NewTimer creates a dormant timer. fn runs on the service goroutine each
// time the timer expires.
func (s *Service) NewTimer(name string, period time.Duration, fn func()) *Timer {
	t := &Timer{svc: s, name: name, fn: fn, period: period}
	t.periodMirror.Store(int64(period))
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// Pend queues fn to run on the service goroutine, after all requests
// queued before it.
func (s *Service) Pend(fn func()) error {
	return s.enqueue(request{op: opCall, fn: fn})
}

// Pending returns the number of queued requests.
func (s *Service) Pending() int { return len(s.reqs) }

// Run processes requests and fires timers until ctx is done.
func (s *Service) Run(ctx context.Context) {
	defer s.doneOnce.Do(func() { close(s.done) })

	expiry := time.NewTimer(time.Hour)
	stopTimer(expiry)
	defer expiry.Stop()

	var hbC <-chan time.Time
	if s.hbFn != nil && s.hbEvery > 0 {
		hb := time.NewTicker(s.hbEvery)
		defer hb.Stop()
		hbC = hb.C
	}

	for {
		if next, ok := s.earliest(); ok {
			resetTimer(expiry, next.Sub(s.now()))
		} else {
			stopTimer(expiry)
		}

		select {
		case <-ctx.Done():
			return
		case r := <-s.reqs:
			s.apply(r)
		case <-expiry.C:
			s.fire(s.now())
		case <-hbC:
			s.hbFn()
		}
	}
}

func (s *Service) enqueue(r request) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	if s.wait <= 0 {
		select {
		case s.reqs <- r:
			return nil
		default:
			return ErrQueueFull
		}
	}

	t := time.NewTimer(s.wait)
	defer t.Stop()
	select {
	case s.reqs <- r:
		return nil
	case <-t.C:
		return ErrQueueFull
	case <-s.done:
		return ErrStopped
	}
}

func (s *Service) snapshot() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Timer(nil), s.timers...)
}

func (s *Service) earliest() (time.Time, bool) {
	var next time.Time
	found := false
	for _, t := range s.snapshot() {
		if !t.running {
			continue
		}
		if !found || t.next.Before(next) {
			next = t.next
			found = true
		}
	}
	return next, found
}

func (s *Service) apply(r request) {
	now := s.now()
	switch r.op {
	case opStart:
		r.timer.running = true
		r.timer.next = now.Add(r.timer.period)
		r.timer.runningMirror.Store(true)
	case opStop:
		r.timer.running = false
		r.timer.runningMirror.Store(false)
	case opPeriod:
		r.timer.period = r.period
		r.timer.periodMirror.Store(int64(r.period))
		if r.timer.running {
			r.timer.next = now.Add(r.period)
		}
	case opCall:
		if r.fn != nil {
			r.fn()
		}
	}
}

func (s *Service) fire(now time.Time) {
	for _, t := range s.snapshot() {
		if !t.running || t.next.After(now) {
			continue
		}
		t.fires.Add(1)
		if t.fn != nil {
			t.fn()
		}
		t.next = t.next.Add(t.period)
		if !t.next.After(now) {
			// Fell behind; do not replay missed expiries.
			t.next = now.Add(t.period)
		}
	}
}

// Timer is an auto-reload software timer. Fields without the mirror suffix
// are owned by the service goroutine.
type Timer struct {
	svc  *Service
	name string
	fn   func()

	period  time.Duration
	running bool
	next    time.Time

	periodMirror  atomic.Int64
	runningMirror atomic.Bool
	fires         atomic.Uint64
}

// Name returns the timer name.
func (t *Timer) Name() string { return t.name }

// Start requests the timer to (re)start; the first expiry is one period
// after the request is applied.
func (t *Timer) Start() error {
	return t.svc.enqueue(request{op: opStart, timer: t})
}

// Stop requests the timer to stop. Stopping a dormant timer is a no-op.
func (t *Timer) Stop() error {
	return t.svc.enqueue(request{op: opStop, timer: t})
}

// ChangePeriod requests a new period. A running timer restarts from the
// moment the request is applied; a dormant timer stays dormant.
func (t *Timer) ChangePeriod(d time.Duration) error {
	if d <= 0 {
		return ErrBadPeriod
	}
	return t.svc.enqueue(request{op: opPeriod, timer: t, period: d})
}

// Running reports the last applied running state.
func (t *Timer) Running() bool { return t.runningMirror.Load() }

// Period reports the last applied period.
func (t *Timer) Period() time.Duration { return time.Duration(t.periodMirror.Load()) }

// Fires returns how many times the callback has run.
func (t *Timer) Fires() uint64 { return t.fires.Load() }
