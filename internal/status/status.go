// Package status provides a thread-safe status tracker for the ledlink daemon.
// It folds controller events into a snapshot read by HTTP handlers and the
// MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ledlink/internal/protocol"
	"github.com/sweeney/ledlink/internal/watchdog"
)

// RecentEvents is how many notable events a snapshot keeps.
const RecentEvents = 10

// Config contains daemon configuration for display.
type Config struct {
	Port              string
	Baud              int
	ProbeIntervalMs   int64
	ProbeJitterMs     int64
	ResponseTimeoutMs int64
	PeriodMs          int64
	Broker            string
	HTTPAddr          string
}

// Counts tallies controller events since start.
type Counts struct {
	Commands         int
	InvalidPatterns  int
	Pings            int
	Probes           int
	Pongs            int
	Degrades         int
	Restores         int
	Overflows        int
	TransmitFailures int
	WatchdogAlerts   int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pattern       string
	LinkDegraded  bool
	LastPong      time.Time
	LastCommand   time.Time
	Counts        Counts
	Overruns      uint64
	Tasks         []watchdog.EntryStats
	Recent        []protocol.Event // newest last
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	overruns func() uint64
	tasks    func() []watchdog.EntryStats
	now      func() time.Time
}

// NewTracker creates a Tracker with the given start time and config. The
// pattern starts at NONE, the state the daemon establishes at boot.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Pattern:   "NONE",
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetSources registers live counters read at snapshot time. Either may be nil.
func (t *Tracker) SetSources(overruns func() uint64, tasks func() []watchdog.EntryStats) {
	t.mu.Lock()
	t.overruns = overruns
	t.tasks = tasks
	t.mu.Unlock()
}

// Notify folds one controller event into the state.
func (t *Tracker) Notify(ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.snap.Counts
	switch ev.Type {
	case protocol.EventPatternChanged:
		c.Commands++
		t.snap.Pattern = ev.Pattern
		t.snap.LastCommand = ev.Timestamp
	case protocol.EventInvalidPattern:
		c.InvalidPatterns++
		t.snap.LastCommand = ev.Timestamp
	case protocol.EventPing:
		c.Pings++
	case protocol.EventProbeSent:
		c.Probes++
	case protocol.EventPong:
		c.Pongs++
		t.snap.LastPong = ev.Timestamp
	case protocol.EventLinkDegraded:
		c.Degrades++
		t.snap.LinkDegraded = true
	case protocol.EventLinkRestored:
		c.Restores++
		t.snap.LinkDegraded = false
	case protocol.EventBufferOverflow:
		c.Overflows++
	case protocol.EventTransmitFailed:
		c.TransmitFailures++
	case protocol.EventWatchdogAlert:
		c.WatchdogAlerts++
	}

	if ev.Type.Notable() {
		t.snap.Recent = append(t.snap.Recent, ev)
		if n := len(t.snap.Recent); n > RecentEvents {
			t.snap.Recent = append([]protocol.Event(nil), t.snap.Recent[n-RecentEvents:]...)
		}
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Recent = append([]protocol.Event(nil), t.snap.Recent...)
	overruns, tasks := t.overruns, t.tasks
	t.mu.RUnlock()

	if overruns != nil {
		s.Overruns = overruns()
	}
	if tasks != nil {
		s.Tasks = tasks()
	}
	s.Now = t.now()
	return s
}
