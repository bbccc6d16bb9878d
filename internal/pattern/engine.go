package pattern

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sweeney/ledlink/internal/gpio"
	"github.com/sweeney/ledlink/internal/retry"
	"github.com/sweeney/ledlink/internal/softtimer"
)

// Timer is a periodic callback driven by another goroutine.
type Timer interface {
	Start() error
	Stop() error
	ChangePeriod(time.Duration) error
}

// Scheduler creates timers and runs functions in the timer context.
type Scheduler interface {
	NewTimer(name string, period time.Duration, fn func()) Timer
	Pend(fn func()) error
}

// Logger receives diagnostic lines.
type Logger interface {
	Printf(format string, args ...any)
}

// FromService adapts a softtimer.Service to a Scheduler.
func FromService(svc *softtimer.Service) Scheduler {
	return softScheduler{svc: svc}
}

type softScheduler struct{ svc *softtimer.Service }

func (s softScheduler) NewTimer(name string, period time.Duration, fn func()) Timer {
	return s.svc.NewTimer(name, period, fn)
}

func (s softScheduler) Pend(fn func()) error { return s.svc.Pend(fn) }

// RequestRetry bounds retries of a timer request rejected by the scheduler.
var RequestRetry = retry.Policy{Attempts: 3, Delay: time.Millisecond}

// Engine owns the two output timers. Set is called from a single goroutine.
type Engine struct {
	out    gpio.Writer
	sched  Scheduler
	period time.Duration
	log    Logger
	retry  retry.Policy

	timers [gpio.NumOutputs]Timer
	state  State

	toggleFailed [gpio.NumOutputs]atomic.Bool
}

// NewEngine creates the output timers, dormant, and leaves the pattern at None.
// It does not touch the outputs; call Set(None) to establish the baseline.
func NewEngine(out gpio.Writer, sched Scheduler, period time.Duration, log Logger) *Engine {
	if period <= 0 {
		period = DefaultPeriod
	}
	e := &Engine{
		out:    out,
		sched:  sched,
		period: period,
		log:    log,
		retry:  RequestRetry,
	}
	for i := range e.timers {
		o := gpio.Output(i)
		e.timers[i] = sched.NewTimer("output-"+o.String(), period, func() { e.toggle(o) })
	}
	return e
}

// Current returns the active pattern.
func (e *Engine) Current() State { return e.state }

// Period returns the fast blink period.
func (e *Engine) Period() time.Duration { return e.period }

// Set switches to s: stop both timers, write baseline levels, then
// configure and start the timers the pattern needs. Requests are applied
// in that order by the timer goroutine. A request the scheduler keeps
// rejecting is logged and reported; the remaining steps still run.
func (e *Engine) Set(s State) error {
	var errs []error
	note := func(step string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}

	for i, t := range e.timers {
		t := t
		note("stop output "+gpio.Output(i).String(), e.retry.Do(t.Stop))
	}

	a, b := s.Modes(e.period)
	modes := [gpio.NumOutputs]OutputMode{a, b}

	note("baseline", e.retry.Do(func() error {
		return e.sched.Pend(func() { e.baseline(modes) })
	}))

	for i, t := range e.timers {
		if !modes[i].Periodic {
			continue
		}
		t, period, name := t, modes[i].Period, gpio.Output(i).String()
		note("period output "+name, e.retry.Do(func() error { return t.ChangePeriod(period) }))
		note("start output "+name, e.retry.Do(t.Start))
	}

	e.state = s

	if len(errs) > 0 {
		err := errors.Join(errs...)
		e.logf("[LED] ERROR: timer request failed for %v: %v", s, err)
		return fmt.Errorf("set pattern %v: %w", s, err)
	}
	return nil
}

// baseline runs in the timer context, after both stops are applied.
func (e *Engine) baseline(modes [gpio.NumOutputs]OutputMode) {
	for i, m := range modes {
		o := gpio.Output(i)
		if err := e.out.Set(o, m.Level); err != nil {
			e.timerLogf("[LED] ERROR: set output %v: %v", o, err)
		}
		e.toggleFailed[i].Store(false)
	}
}

// toggle is the timer callback; it must stay fast.
func (e *Engine) toggle(o gpio.Output) {
	if err := e.out.Toggle(o); err != nil {
		if e.toggleFailed[o].CompareAndSwap(false, true) {
			e.timerLogf("[LED] ERROR: toggle output %v: %v", o, err)
		}
	}
}

// nonBlockingLogger is implemented by loggers that can drop a line instead
// of waiting for queue space.
type nonBlockingLogger interface {
	TryPrintf(format string, args ...any) bool
}

// timerLogf logs from the timer context, where waiting is not allowed.
func (e *Engine) timerLogf(format string, args ...any) {
	if nb, ok := e.log.(nonBlockingLogger); ok {
		nb.TryPrintf(format, args...)
		return
	}
	e.logf(format, args...)
}

func (e *Engine) logf(format string, args ...any) {
	if e.log != nil {
		e.log.Printf(format, args...)
	}
}
