package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Pattern       string      `json:"pattern"`
	Link          LinkJSON    `json:"link"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"event_counts"`
	Watchdog      []TaskJSON  `json:"watchdog"`
	Recent        []EventJSON `json:"recent_events,omitempty"`
	Config        ConfigJSON  `json:"config"`
}

// LinkJSON reports the command link health.
type LinkJSON struct {
	Healthy     bool   `json:"healthy"`
	LastPong    string `json:"last_pong,omitempty"`
	LastCommand string `json:"last_command,omitempty"`
	Overruns    uint64 `json:"overruns"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Commands         int `json:"commands"`
	InvalidPatterns  int `json:"invalid_patterns"`
	Pings            int `json:"pings"`
	Probes           int `json:"probes"`
	Pongs            int `json:"pongs"`
	Degrades         int `json:"degrades"`
	Restores         int `json:"restores"`
	Overflows        int `json:"overflows"`
	TransmitFailures int `json:"transmit_failures"`
	WatchdogAlerts   int `json:"watchdog_alerts"`
}

// TaskJSON is one watchdog entry.
type TaskJSON struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	TimeoutMs int64  `json:"timeout_ms"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Alerts    int    `json:"alerts"`
}

// EventJSON is one recent controller event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Pattern   string `json:"pattern,omitempty"`
	Task      string `json:"task,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Port              string `json:"port"`
	Baud              int    `json:"baud"`
	ProbeIntervalMs   int64  `json:"probe_interval_ms"`
	ProbeJitterMs     int64  `json:"probe_jitter_ms"`
	ResponseTimeoutMs int64  `json:"response_timeout_ms"`
	PeriodMs          int64  `json:"period_ms"`
	Broker            string `json:"broker"`
	HTTPAddr          string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	pattern := snap.Pattern
	if pattern == "" {
		pattern = "UNKNOWN"
	}

	inner := StatusInner{
		Pattern: pattern,
		Link: LinkJSON{
			Healthy:     !snap.LinkDegraded,
			LastPong:    formatTime(snap.LastPong),
			LastCommand: formatTime(snap.LastCommand),
			Overruns:    snap.Overruns,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commands:         snap.Counts.Commands,
			InvalidPatterns:  snap.Counts.InvalidPatterns,
			Pings:            snap.Counts.Pings,
			Probes:           snap.Counts.Probes,
			Pongs:            snap.Counts.Pongs,
			Degrades:         snap.Counts.Degrades,
			Restores:         snap.Counts.Restores,
			Overflows:        snap.Counts.Overflows,
			TransmitFailures: snap.Counts.TransmitFailures,
			WatchdogAlerts:   snap.Counts.WatchdogAlerts,
		},
		Watchdog: []TaskJSON{},
		Config: ConfigJSON{
			Port:              snap.Config.Port,
			Baud:              snap.Config.Baud,
			ProbeIntervalMs:   snap.Config.ProbeIntervalMs,
			ProbeJitterMs:     snap.Config.ProbeJitterMs,
			ResponseTimeoutMs: snap.Config.ResponseTimeoutMs,
			PeriodMs:          snap.Config.PeriodMs,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}
	for _, e := range snap.Tasks {
		inner.Watchdog = append(inner.Watchdog, TaskJSON{
			ID:        int(e.ID),
			Name:      e.Name,
			TimeoutMs: e.Timeout.Milliseconds(),
			ElapsedMs: e.Elapsed.Milliseconds(),
			Alerts:    e.Alerts,
		})
	}
	return inner
}

func buildRecent(snap Snapshot, inner *StatusInner) {
	for _, ev := range snap.Recent {
		inner.Recent = append(inner.Recent, EventJSON{
			Timestamp: formatTime(ev.Timestamp),
			Type:      string(ev.Type),
			Pattern:   ev.Pattern,
			Task:      ev.Task,
			Detail:    ev.Detail,
		})
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildRecent(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Recent events are left out to keep retained payloads small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
