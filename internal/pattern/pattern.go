// Package pattern maps the four output patterns onto two independently
// scheduled periodic outputs.
package pattern

import (
	"fmt"
	"time"
)

// State is the active output pattern. Exactly one is active at a time.
type State int

const (
	None State = iota
	On
	AsyncBlink
	SyncBlink
)

// DefaultPeriod is the fast blink period P.
const DefaultPeriod = 100 * time.Millisecond

// SlowFactor multiplies P for output B in AsyncBlink.
const SlowFactor = 10

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case On:
		return "ON"
	case AsyncBlink:
		return "ASYNC_BLINK"
	case SyncBlink:
		return "SYNC_BLINK"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AckName returns the name used in the wire acknowledgement.
func (s State) AckName() string {
	switch s {
	case On:
		return "Pattern1"
	case AsyncBlink:
		return "Pattern2"
	case SyncBlink:
		return "Pattern3"
	default:
		return "AllOFF"
	}
}

// Describe returns the log description of the pattern.
func (s State) Describe() string {
	switch s {
	case On:
		return "Pattern 1: All LEDs ON"
	case AsyncBlink:
		return "Pattern 2: Different Frequency Blink"
	case SyncBlink:
		return "Pattern 3: Same Frequency Blink"
	default:
		return "Pattern 4: All LEDs OFF"
	}
}

// FromDigit maps a command digit to a pattern.
func FromDigit(c byte) (State, bool) {
	switch c {
	case '1':
		return On, true
	case '2':
		return AsyncBlink, true
	case '3':
		return SyncBlink, true
	case '4':
		return None, true
	}
	return None, false
}

// OutputMode is the configuration of one output under a pattern.
type OutputMode struct {
	Periodic bool
	Period   time.Duration // only meaningful when Periodic
	Level    bool          // baseline level written before timers start
}

// Modes returns the configuration of both outputs under s for fast period p.
func (s State) Modes(p time.Duration) (a, b OutputMode) {
	switch s {
	case On:
		return OutputMode{Level: true}, OutputMode{Level: true}
	case AsyncBlink:
		return OutputMode{Periodic: true, Period: p}, OutputMode{Periodic: true, Period: SlowFactor * p}
	case SyncBlink:
		return OutputMode{Periodic: true, Period: p}, OutputMode{Periodic: true, Period: p}
	default:
		return OutputMode{}, OutputMode{}
	}
}
