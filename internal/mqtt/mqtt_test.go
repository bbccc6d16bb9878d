package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/ledlink/internal/protocol"
)

func TestFormatPayload(t *testing.T) {
	event := protocol.Event{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Type:      protocol.EventPatternChanged,
		Pattern:   "ASYNC_BLINK",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"controller":{"timestamp":"2026-02-10T08:30:00Z","event":"PATTERN_CHANGED","pattern":"ASYNC_BLINK"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadEventTypes(t *testing.T) {
	ts := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	tests := []struct {
		event protocol.Event
		want  string
	}{
		{
			protocol.Event{Timestamp: ts, Type: protocol.EventInvalidPattern, Detail: "9"},
			`{"controller":{"timestamp":"2026-02-10T08:30:00Z","event":"INVALID_PATTERN","detail":"9"}}`,
		},
		{
			protocol.Event{Timestamp: ts, Type: protocol.EventLinkDegraded},
			`{"controller":{"timestamp":"2026-02-10T08:30:00Z","event":"LINK_DEGRADED"}}`,
		},
		{
			protocol.Event{Timestamp: ts, Type: protocol.EventWatchdogAlert, Task: "log-sink", Detail: "elapsed 6000ms > 5000ms"},
			`{"controller":{"timestamp":"2026-02-10T08:30:00Z","event":"WATCHDOG_ALERT","task":"log-sink","detail":"elapsed 6000ms > 5000ms"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.event.Type), func(t *testing.T) {
			payload, err := FormatPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), tt.want)
			}
		})
	}
}

func TestFormatPayloadDoesNotEscapeDetail(t *testing.T) {
	event := protocol.Event{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Type:      protocol.EventPatternChanged,
		Pattern:   "SYNC_BLINK",
		Detail:    "stop output A: <queue full> & retried",
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"controller":{"timestamp":"2026-02-10T08:30:00Z","event":"PATTERN_CHANGED","pattern":"SYNC_BLINK","detail":"stop output A: <queue full> & retried"}}`
	if string(payload) != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, want)
	}
	if bytes.HasSuffix(payload, []byte("\n")) {
		t.Error("payload should not end with a newline")
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := protocol.Event{
		Timestamp: time.Date(2026, 2, 10, 10, 30, 0, 0, loc),
		Type:      protocol.EventBufferOverflow,
	}

	payload, _ := FormatPayload(event)

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Controller.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("timestamp: got %s, want 2026-02-10T08:30:00Z", parsed.Controller.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if got := EventsTopic(DefaultPrefix); got != "ledlink/events" {
		t.Errorf("EventsTopic: got %s", got)
	}
	if got := SystemTopic("lab/leds"); got != "lab/leds/system" {
		t.Errorf("SystemTopic: got %s", got)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	fake := NewFakePublisher()
	event := protocol.Event{Type: protocol.EventPatternChanged, Pattern: "ON"}

	if err := fake.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Events) != 1 || fake.Events[0].Pattern != "ON" {
		t.Errorf("unexpected events: %+v", fake.Events)
	}
	if len(fake.Payloads) != 1 {
		t.Errorf("expected 1 payload, got %d", len(fake.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker gone")

	if err := fake.Publish(protocol.Event{Type: protocol.EventLinkDegraded}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.Events) != 0 {
		t.Errorf("failed publish should not be recorded")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	fake := NewFakePublisher()

	fake.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	fake.PublishSystem(SystemEvent{Event: "RECONNECTED"})

	got := fake.PublishedSystemEvents()
	if len(got) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(got))
	}
	if !got[0].Retained || got[1].Retained {
		t.Errorf("retained flags: got %v, %v", got[0].Retained, got[1].Retained)
	}
}

func TestFakePublisherReset(t *testing.T) {
	fake := NewFakePublisher()
	fake.Publish(protocol.Event{Type: protocol.EventPong})
	fake.PublishSystem(SystemEvent{Event: "STARTUP"})
	fake.Close()
	fake.Connected = true

	fake.Reset()

	if len(fake.Events) != 0 || len(fake.SystemEvents) != 0 || fake.Closed || fake.IsConnected() {
		t.Errorf("reset left state behind: %+v", fake)
	}
}

func runAsync(t *testing.T, a *Async) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncPublishesNotableEventsOnly(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 8)
	runAsync(t, a)

	a.Notify(protocol.Event{Type: protocol.EventPing})
	a.Notify(protocol.Event{Type: protocol.EventPong})
	a.Notify(protocol.Event{Type: protocol.EventProbeSent})
	a.Notify(protocol.Event{Type: protocol.EventPatternChanged, Pattern: "SYNC_BLINK"})
	a.Notify(protocol.Event{Type: protocol.EventLinkDegraded})

	waitFor(t, func() bool { return len(fake.PublishedEvents()) == 2 })
	got := fake.PublishedEvents()
	if got[0].Type != protocol.EventPatternChanged || got[1].Type != protocol.EventLinkDegraded {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestAsyncDropsWhenFull(t *testing.T) {
	fake := NewFakePublisher()
	a := NewAsync(fake, 2)

	for i := 0; i < 5; i++ {
		a.Notify(protocol.Event{Type: protocol.EventBufferOverflow})
	}
	if a.Dropped() != 3 {
		t.Errorf("Dropped: got %d, want 3", a.Dropped())
	}

	cancel, done := runAsync(t, a)
	cancel()
	<-done
	if n := len(fake.PublishedEvents()); n != 2 {
		t.Errorf("flushed: got %d, want 2", n)
	}
}

func TestAsyncCountsFailures(t *testing.T) {
	fake := NewFakePublisher()
	fake.SetPublishError(errors.New("timeout"))
	a := NewAsync(fake, 4)
	runAsync(t, a)

	a.Notify(protocol.Event{Type: protocol.EventTransmitFailed, Detail: "PONG"})

	waitFor(t, func() bool { return a.Failed() == 1 })
}

var _ Publisher = (*RealPublisher)(nil)
var _ ConnectionStatus = (*RealPublisher)(nil)
var _ Publisher = (*FakePublisher)(nil)
