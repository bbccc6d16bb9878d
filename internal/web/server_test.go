package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/ledlink/internal/protocol"
	"github.com/sweeney/ledlink/internal/status"
	"github.com/sweeney/ledlink/internal/watchdog"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Port:              "/dev/ttyAMA0",
		Baud:              115200,
		ProbeIntervalMs:   10000,
		ProbeJitterMs:     2000,
		ResponseTimeoutMs: 1000,
		PeriodMs:          100,
		Broker:            "tcp://192.168.1.200:1883",
		HTTPAddr:          ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Notify(protocol.Event{Type: protocol.EventPatternChanged, Pattern: "ASYNC_BLINK"})
	tr.Notify(protocol.Event{Type: protocol.EventPong, Timestamp: time.Now()})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Pattern != "ASYNC_BLINK" {
		t.Errorf("Pattern: got %q, want ASYNC_BLINK", sj.Status.Pattern)
	}
	if !sj.Status.Link.Healthy {
		t.Error("expected Link.Healthy=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Commands != 1 || sj.Status.Counts.Pongs != 1 {
		t.Errorf("Counts: got %+v", sj.Status.Counts)
	}
	if sj.Status.Config.ProbeIntervalMs != 10000 {
		t.Errorf("Config.ProbeIntervalMs: got %d, want 10000", sj.Status.Config.ProbeIntervalMs)
	}
}

func TestJSONWatchdogEntries(t *testing.T) {
	ts, tr := newTestServer(t)
	reg := watchdog.New(nil, time.Second)
	reg.Register("link", 5*time.Second)
	reg.Register("log-sink", 5*time.Second)
	tr.SetSources(func() uint64 { return 2 }, reg.Entries)

	sj := getJSON(t, ts.URL+"/index.json")

	if len(sj.Status.Watchdog) != 2 {
		t.Fatalf("Watchdog: got %d entries, want 2", len(sj.Status.Watchdog))
	}
	if sj.Status.Watchdog[1].Name != "log-sink" || sj.Status.Watchdog[1].TimeoutMs != 5000 {
		t.Errorf("Watchdog[1]: got %+v", sj.Status.Watchdog[1])
	}
	if sj.Status.Link.Overruns != 2 {
		t.Errorf("Link.Overruns: got %d, want 2", sj.Status.Link.Overruns)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.Notify(protocol.Event{Type: protocol.EventPatternChanged, Pattern: "SYNC_BLINK"})
	tr.Notify(protocol.Event{Type: protocol.EventLinkDegraded})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"SYNC_BLINK", "degraded", "LINK_DEGRADED", "/dev/ttyAMA0 @ 115200", "no tasks registered"} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestReadOnly(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/", "/index.json"} {
		resp, err := http.Post(ts.URL+path, "text/plain", strings.NewReader("LED_CMD:1"))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, resp.StatusCode)
		}
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1 := getJSON(t, ts.URL+"/index.json")
	if sj1.Status.Pattern != "NONE" {
		t.Errorf("expected NONE initially, got %q", sj1.Status.Pattern)
	}

	tr.Notify(protocol.Event{Type: protocol.EventPatternChanged, Pattern: "ON"})
	tr.Notify(protocol.Event{Type: protocol.EventLinkDegraded})

	sj2 := getJSON(t, ts.URL+"/index.json")
	if sj2.Status.Pattern != "ON" {
		t.Errorf("Pattern: got %q, want ON", sj2.Status.Pattern)
	}
	if sj2.Status.Link.Healthy {
		t.Error("expected degraded link after update")
	}
}
