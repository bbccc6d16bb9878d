package bytechan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSize(t *testing.T) {
	assert.Panics(t, func() { New(100, 10) })
	assert.Panics(t, func() { New(1, 1) })
	assert.NotPanics(t, func() { New(128, 64) })
}

func TestPushReceiveOrder(t *testing.T) {
	c := New(8, 4)
	for _, b := range []byte("abc") {
		require.True(t, c.Push(b))
	}
	require.Equal(t, 3, c.Len())

	var got []byte
	for i := 0; i < 3; i++ {
		b, ok := c.Receive(context.Background(), 10*time.Millisecond)
		require.True(t, ok)
		got = append(got, b)
	}
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 0, c.Len())
}

func TestPushFullCountsOverrun(t *testing.T) {
	c := New(4, 2)
	for i := 0; i < 4; i++ {
		require.True(t, c.Push(byte(i)))
	}
	assert.False(t, c.Push(9))
	assert.Equal(t, uint64(1), c.Overruns())

	// Space frees up after a receive.
	b, ok := c.TryReceive()
	require.True(t, ok)
	assert.Equal(t, byte(0), b)
	assert.True(t, c.Push(9))
}

func TestReceiveTimesOut(t *testing.T) {
	c := New(8, 4)
	start := time.Now()
	_, ok := c.Receive(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestReceiveWakesOnPush(t *testing.T) {
	c := New(8, 4)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Push('x')
	}()
	b, ok := c.Receive(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, byte('x'), b)
}

func TestReceiveReturnsOnCancel(t *testing.T) {
	c := New(8, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := c.Receive(ctx, time.Second)
	assert.False(t, ok)
}

func TestHighWaterWarnsOnce(t *testing.T) {
	c := New(16, 4)
	for i := 0; i < 4; i++ {
		c.Push(byte(i))
	}
	assert.False(t, c.CheckHighWater(), "at the mark is not above it")

	c.Push(4)
	assert.True(t, c.CheckHighWater())
	c.Push(5)
	assert.False(t, c.CheckHighWater(), "warning is latched")
}

func TestOrderAcrossWrapConcurrent(t *testing.T) {
	c := New(16, 8)
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if c.Push(byte(i)) {
				i++
			}
		}
	}()

	for i := 0; i < n; i++ {
		b, ok := c.Receive(context.Background(), time.Second)
		require.True(t, ok, "byte %d", i)
		require.Equal(t, byte(i), b, "byte %d", i)
	}
	wg.Wait()
}
