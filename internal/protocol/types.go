// Package protocol contains the pure parts of the command link: message
// recognition, reply strings, the line accumulator and controller events.
// This package has NO external dependencies (no serial, GPIO, MQTT or sleeps).
package protocol

import "time"

// Inbound message prefixes.
const (
	PrefixPing    = "PING"
	PrefixPong    = "STM32_PONG"
	PrefixPattern = "LED_CMD:"
)

// Outbound lines. Terminators are added by the transmitter.
const (
	ReplyPong           = "PONG"
	ReplyProbe          = "STM32_PING"
	ReplyInvalidPattern = "ERROR:InvalidPattern"
	ReplyBufferOverflow = "ERROR:BufferOverflow"
	Banner              = "STM32 LED Controller Ready"
)

// AckPrefix precedes the pattern name in a pattern acknowledgement.
const AckPrefix = "OK:"

// Ack returns the acknowledgement line for a pattern name.
func Ack(name string) string { return AckPrefix + name }

// Kind identifies a recognized inbound message.
type Kind int

const (
	KindUnknown Kind = iota
	KindPing
	KindPong
	KindPattern
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "PING"
	case KindPong:
		return "PONG"
	case KindPattern:
		return "PATTERN"
	default:
		return "UNKNOWN"
	}
}

// Message is a parsed inbound line.
type Message struct {
	Kind Kind
	// Digit is the byte following the pattern prefix, 0 if absent.
	Digit byte
}

// EventType names something the controller did or observed.
type EventType string

const (
	EventPatternChanged EventType = "PATTERN_CHANGED"
	EventInvalidPattern EventType = "INVALID_PATTERN"
	EventPing           EventType = "PING"
	EventProbeSent      EventType = "PROBE_SENT"
	EventPong           EventType = "PONG"
	EventLinkDegraded   EventType = "LINK_DEGRADED"
	EventLinkRestored   EventType = "LINK_RESTORED"
	EventBufferOverflow EventType = "BUFFER_OVERFLOW"
	EventTransmitFailed EventType = "TRANSMIT_FAILED"
	EventWatchdogAlert  EventType = "WATCHDOG_ALERT"
)

// Notable reports whether the event is worth publishing off-box. Routine
// keep-alive traffic is not.
func (t EventType) Notable() bool {
	switch t {
	case EventPing, EventProbeSent, EventPong:
		return false
	}
	return true
}

// Event is a controller event.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Pattern   string // pattern name for pattern events
	Task      string // watchdog task name for watchdog alerts
	Detail    string
}
