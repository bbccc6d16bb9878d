package softtimer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestTimerFiresPeriodically(t *testing.T) {
	s := NewService(4, 0)
	var n atomic.Int32
	tm := s.NewTimer("a", 5*time.Millisecond, func() { n.Add(1) })
	startService(t, s)

	require.NoError(t, tm.Start())

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, tm.Running())
	assert.GreaterOrEqual(t, tm.Fires(), uint64(3))
}

func TestDormantTimerNeverFires(t *testing.T) {
	s := NewService(4, 0)
	var n atomic.Int32
	s.NewTimer("a", time.Millisecond, func() { n.Add(1) })
	startService(t, s)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestStopHaltsCallbacks(t *testing.T) {
	s := NewService(4, 0)
	var n atomic.Int32
	tm := s.NewTimer("a", 2*time.Millisecond, func() { n.Add(1) })
	startService(t, s)

	require.NoError(t, tm.Start())
	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, tm.Stop())
	applied := make(chan struct{})
	require.NoError(t, s.Pend(func() { close(applied) }))
	<-applied

	after := n.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, n.Load())
	assert.False(t, tm.Running())
}

func TestStopDormantIsNoop(t *testing.T) {
	s := NewService(4, 0)
	tm := s.NewTimer("a", time.Millisecond, nil)
	startService(t, s)

	require.NoError(t, tm.Stop())
	require.NoError(t, tm.Stop())
	assert.False(t, tm.Running())
}

func TestChangePeriod(t *testing.T) {
	s := NewService(4, 0)
	tm := s.NewTimer("a", time.Hour, nil)
	startService(t, s)

	require.NoError(t, tm.ChangePeriod(50*time.Millisecond))
	require.Eventually(t, func() bool { return tm.Period() == 50*time.Millisecond }, time.Second, time.Millisecond)
	assert.False(t, tm.Running(), "change period leaves a dormant timer dormant")

	assert.ErrorIs(t, tm.ChangePeriod(0), ErrBadPeriod)
}

func TestRequestsApplyInOrder(t *testing.T) {
	s := NewService(8, 0)
	var mu sync.Mutex
	var order []string
	record := func(s string) func() {
		return func() {
			mu.Lock()
			order = append(order, s)
			mu.Unlock()
		}
	}

	// Queue before the service runs so the order is fixed.
	require.NoError(t, s.Pend(record("first")))
	require.NoError(t, s.Pend(record("second")))
	require.NoError(t, s.Pend(record("third")))
	startService(t, s)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestQueueFullReported(t *testing.T) {
	s := NewService(1, 0)
	tm := s.NewTimer("a", time.Millisecond, nil)

	// Nothing drains the queue yet.
	require.NoError(t, tm.Stop())
	assert.ErrorIs(t, tm.Start(), ErrQueueFull)
	assert.Equal(t, 1, s.Pending())
}

func TestQueueWaitTimesOut(t *testing.T) {
	s := NewService(1, 10*time.Millisecond)
	tm := s.NewTimer("a", time.Millisecond, nil)

	require.NoError(t, tm.Stop())
	start := time.Now()
	assert.ErrorIs(t, tm.Start(), ErrQueueFull)
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestStoppedServiceRejects(t *testing.T) {
	s := NewService(4, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.ErrorIs(t, s.Pend(func() {}), ErrStopped)
}

func TestHeartbeatRunsWhileIdle(t *testing.T) {
	s := NewService(4, 0)
	var beats atomic.Int32
	s.SetHeartbeat(2*time.Millisecond, func() { beats.Add(1) })
	startService(t, s)

	require.Eventually(t, func() bool { return beats.Load() >= 3 }, time.Second, time.Millisecond)
}
