package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line  string
		kind  Kind
		digit byte
	}{
		{"PING", KindPing, 0},
		{"PINGextra", KindPing, 0},
		{"STM32_PONG", KindPong, 0},
		{"LED_CMD:1", KindPattern, '1'},
		{"LED_CMD:4", KindPattern, '4'},
		{"LED_CMD:9", KindPattern, '9'},
		{"LED_CMD:", KindPattern, 0},
		{"LED_CMD:23", KindPattern, '2'},
		{"led_cmd:1", KindUnknown, 0},
		{"PONG", KindUnknown, 0},
		{"STM32_PING", KindUnknown, 0},
		{"hello", KindUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			m := Parse(tt.line)
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.digit, m.Digit)
		})
	}
}

func TestAck(t *testing.T) {
	assert.Equal(t, "OK:Pattern2", Ack("Pattern2"))
}

func feedAll(b *LineBuffer, s string) (lines []string, results []FeedResult) {
	for i := 0; i < len(s); i++ {
		line, res := b.Feed(s[i])
		results = append(results, res)
		if res == Complete {
			lines = append(lines, line)
		}
	}
	return lines, results
}

func TestLineBufferCompletesOnLFAndCR(t *testing.T) {
	b := NewLineBuffer(DefaultLineCapacity)

	lines, _ := feedAll(b, "PING\nSTM32_PONG\rLED_CMD:1\r\n")

	assert.Equal(t, []string{"PING", "STM32_PONG", "LED_CMD:1"}, lines)
	assert.Equal(t, 0, b.Len())
}

func TestLineBufferIgnoresEmptyTerminators(t *testing.T) {
	b := NewLineBuffer(DefaultLineCapacity)

	lines, results := feedAll(b, "\r\n\n\r")

	assert.Empty(t, lines)
	for _, r := range results {
		assert.Equal(t, Ignored, r)
	}
}

func TestLineBufferUnterminatedNoDispatch(t *testing.T) {
	b := NewLineBuffer(64)

	lines, results := feedAll(b, strings.Repeat("A", 62))

	assert.Empty(t, lines)
	assert.Equal(t, 62, b.Len())
	for _, r := range results {
		assert.Equal(t, Pending, r)
	}
}

func TestLineBufferOverflowAtCapacityMinusOne(t *testing.T) {
	b := NewLineBuffer(64)

	_, results := feedAll(b, strings.Repeat("A", 63))
	require.Equal(t, 63, b.Len())
	for _, r := range results {
		require.Equal(t, Pending, r)
	}

	line, res := b.Feed('B')
	assert.Equal(t, Overflow, res)
	assert.Empty(t, line)
	assert.Equal(t, 0, b.Len())

	// Next line starts from an empty buffer.
	lines, _ := feedAll(b, "PING\n")
	assert.Equal(t, []string{"PING"}, lines)
}

func TestLineBufferOverflowCountsOncePerFill(t *testing.T) {
	b := NewLineBuffer(8)

	_, results := feedAll(b, strings.Repeat("x", 8))

	overflows := 0
	for _, r := range results {
		if r == Overflow {
			overflows++
		}
	}
	assert.Equal(t, 1, overflows)
}

func TestNotable(t *testing.T) {
	assert.False(t, EventPing.Notable())
	assert.False(t, EventProbeSent.Notable())
	assert.False(t, EventPong.Notable())
	assert.True(t, EventLinkDegraded.Notable())
	assert.True(t, EventPatternChanged.Notable())
	assert.True(t, EventWatchdogAlert.Notable())
}
