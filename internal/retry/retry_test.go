package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var calls, sleeps int
	p := Policy{Attempts: 3, Delay: time.Millisecond, Sleep: func(time.Duration) { sleeps++ }}

	err := p.Do(func() error { calls++; return nil })

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, sleeps)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var calls int
	var slept []time.Duration
	p := Policy{Attempts: 3, Delay: 10 * time.Millisecond, Sleep: func(d time.Duration) { slept = append(slept, d) }}

	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, slept)
}

func TestDoReturnsLastError(t *testing.T) {
	var calls, sleeps int
	p := Policy{Attempts: 3, Delay: time.Millisecond, Sleep: func(time.Duration) { sleeps++ }}

	err := p.Do(func() error {
		calls++
		return errors.New("attempt " + string(rune('0'+calls)))
	})

	assert.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sleeps, "no pause after the final attempt")
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	var calls int
	err := Policy{}.Do(func() error { calls++; return errors.New("x") })
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransmitPolicy(t *testing.T) {
	assert.Equal(t, 3, Transmit.Attempts)
	assert.Equal(t, 10*time.Millisecond, Transmit.Delay)
}
