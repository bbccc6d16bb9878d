// Package watchdog tracks proof-of-life timestamps for cooperating
// goroutines and alerts when one goes stale.
//
// The table has a fixed capacity and entries live for the whole process.
// Feed is called concurrently from several goroutines; every access to the
// table happens under one mutex. An alert resets the entry's last feed to the
// time of the alert, so a goroutine that stays hung is reported once per
// timeout interval, at the monitor's check cadence, for as long as it stays
// hung.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MaxEntries is the table capacity.
const MaxEntries = 3

// MaxNameLen bounds stored task names.
const MaxNameLen = 15

// DefaultCheckPeriod is how often the monitor scans the table.
const DefaultCheckPeriod = time.Second

// ID identifies a registered entry.
type ID uint8

// InvalidID is returned when registration fails. Feed and Stats ignore it.
const InvalidID ID = 0xFF

// Alert describes a stale entry.
type Alert struct {
	ID      ID
	Name    string
	Elapsed time.Duration
	Timeout time.Duration
	At      time.Time
}

// Logger receives diagnostic lines.
type Logger interface {
	Printf(format string, args ...any)
}

// EntryStats is a read-only view of one entry.
type EntryStats struct {
	ID       ID
	Name     string
	Timeout  time.Duration
	Elapsed  time.Duration
	LastFeed time.Time
	Alerts   int
}

type entry struct {
	name       string
	timeout    time.Duration
	lastFeed   time.Time
	registered bool
	alerts     int
}

// Registry is the liveness table plus its monitor.
type Registry struct {
	mu      sync.Mutex
	entries [MaxEntries]entry
	count   int
	onAlert func(Alert)

	log         Logger
	now         func() time.Time
	checkPeriod time.Duration
}

// New creates an empty registry. checkPeriod <= 0 uses DefaultCheckPeriod.
func New(log Logger, checkPeriod time.Duration) *Registry {
	if checkPeriod <= 0 {
		checkPeriod = DefaultCheckPeriod
	}
	r := &Registry{
		log:         log,
		now:         time.Now,
		checkPeriod: checkPeriod,
	}
	r.logf("[WATCHDOG] Initialized")
	return r
}

// CheckPeriod returns the monitor period.
func (r *Registry) CheckPeriod() time.Duration { return r.checkPeriod }

// SetCallback replaces the default log alert with fn. nil restores it.
func (r *Registry) SetCallback(fn func(Alert)) {
	r.mu.Lock()
	r.onAlert = fn
	r.mu.Unlock()
}

// Register claims the first free slot and starts its clock now. It returns
// InvalidID if the table is full.
func (r *Registry) Register(name string, timeout time.Duration) ID {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	r.mu.Lock()
	id := InvalidID
	if r.count < MaxEntries {
		for i := range r.entries {
			if !r.entries[i].registered {
				id = ID(i)
				break
			}
		}
	}
	if id != InvalidID {
		r.entries[id] = entry{
			name:       name,
			timeout:    timeout,
			lastFeed:   r.now(),
			registered: true,
		}
		r.count++
	}
	r.mu.Unlock()

	if id == InvalidID {
		r.logf("[WATCHDOG] ERROR: Max tasks reached!")
		return InvalidID
	}
	r.logf("[WATCHDOG] Registered '%s' (ID=%d, timeout=%dms)", name, id, timeout.Milliseconds())
	return id
}

// Feed records proof of life for id. Invalid or unregistered ids are ignored.
func (r *Registry) Feed(id ID) {
	if id >= MaxEntries {
		return
	}
	r.mu.Lock()
	if r.entries[id].registered {
		r.entries[id].lastFeed = r.now()
	}
	r.mu.Unlock()
}

// Stats returns time since the last feed and the timeout of id.
func (r *Registry) Stats(id ID) (elapsed, timeout time.Duration, ok bool) {
	if id >= MaxEntries {
		return 0, 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	if !e.registered {
		return 0, 0, false
	}
	return r.now().Sub(e.lastFeed), e.timeout, true
}

// Entries returns stats for every registered entry in id order.
func (r *Registry) Entries() []EntryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []EntryStats
	for i, e := range r.entries {
		if !e.registered {
			continue
		}
		out = append(out, EntryStats{
			ID:       ID(i),
			Name:     e.name,
			Timeout:  e.timeout,
			Elapsed:  now.Sub(e.lastFeed),
			LastFeed: e.lastFeed,
			Alerts:   e.alerts,
		})
	}
	return out
}

// Check scans the table once. Every entry whose elapsed time exceeds its
// timeout is reported and its last feed reset to now. Alerts are delivered
// after the table lock is released.
func (r *Registry) Check() []Alert {
	r.mu.Lock()
	now := r.now()
	var alerts []Alert
	for i := range r.entries {
		e := &r.entries[i]
		if !e.registered {
			continue
		}
		elapsed := now.Sub(e.lastFeed)
		if elapsed > e.timeout {
			alerts = append(alerts, Alert{
				ID:      ID(i),
				Name:    e.name,
				Elapsed: elapsed,
				Timeout: e.timeout,
				At:      now,
			})
			e.lastFeed = now
			e.alerts++
		}
	}
	cb := r.onAlert
	r.mu.Unlock()

	for _, a := range alerts {
		if cb != nil {
			cb(a)
		} else {
			r.logf("%s", FormatAlert(a))
		}
	}
	return alerts
}

// Run scans the table every check period until ctx is done. Wakeups stay on
// the ticker's period grid however long a scan takes; a wakeup that falls
// due while a scan is still running is dropped, not made up later.
func (r *Registry) Run(ctx context.Context) {
	r.logf("[WATCHDOG] Monitor task started")
	ticker := time.NewTicker(r.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Check()
		}
	}
}

// FormatAlert renders the default alert block.
func FormatAlert(a Alert) string {
	return fmt.Sprintf("*** WATCHDOG ALERT ***\nTask: %s (ID=%d)\nLast feed: %d ms ago\nTimeout: %d ms\nStatus: HUNG or DEADLOCKED!",
		a.Name, a.ID, a.Elapsed.Milliseconds(), a.Timeout.Milliseconds())
}

func (r *Registry) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
