// Package retry provides a bounded attempt loop with a fixed pause between
// attempts.
package retry

import "time"

// Transmit is the policy for every outbound line on the command link.
var Transmit = Policy{Attempts: 3, Delay: 10 * time.Millisecond}

// Policy bounds how often an operation is attempted.
type Policy struct {
	Attempts int
	Delay    time.Duration

	// Sleep is used between attempts; nil means time.Sleep.
	Sleep func(time.Duration)
}

// Do calls fn until it succeeds or Attempts are exhausted. It returns nil
// on success, otherwise the error of the last attempt.
func (p Policy) Do(fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 && p.Delay > 0 {
			sleep(p.Delay)
		}
	}
	return err
}
