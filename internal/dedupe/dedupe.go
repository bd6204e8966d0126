// Package dedupe decides when a computed threat becomes a new alert and
// tracks open alerts so a continuing intrusion doesn't flood the Bus. The
// critical section here is intentionally small — a single map access per
// telemetry sample — per spec.md §5's "the critical section touches only
// one key per request."
package dedupe

import (
	"sync"
	"time"

	"github.com/dreadnought-systems/airwatch/internal/model"
)

// Key is the tuple distinguishing "this is a new event" from "this is the
// same event continuing": external identifier (or UNKNOWN), the region the
// track was found inside, and the severity category at open time.
type Key struct {
	ExternalID string
	RegionID   int64
	Severity   model.ThreatLevel
}

// openAlert is the Deduper's bookkeeping for one in-flight alert.
type openAlert struct {
	alertID          int64
	lastSeen         time.Time
	consecutiveClear int // consecutive samples outside every restricted region
}

// IdleWindow is how long a track can go silent before its open alert
// auto-closes, per spec.md §4.6.
const IdleWindow = 120 * time.Second

// Decision tells the caller what the Deduper decided for one telemetry
// sample.
type Decision struct {
	// IsNew is true when a fresh alert should be persisted and published.
	IsNew bool
	// Key is the dedup key the decision was made against.
	Key Key
	// AlertID is the id of the already-open alert when IsNew is false; zero
	// when IsNew is true (the caller assigns it after persisting).
	AlertID int64
}

// Deduper owns the open-alerts map. Safe for concurrent use.
type Deduper struct {
	mu   sync.Mutex
	open map[Key]*openAlert
}

// New constructs an empty Deduper. Cold-start reseeding from the store's
// unresolved alerts is the caller's responsibility (see reseedDeduper in
// cmd/airwatchd/cmd/serve.go),
// since only the store knows which alerts are unresolved across restarts.
func New() *Deduper {
	return &Deduper{open: make(map[Key]*openAlert)}
}

// Seed registers a pre-existing unresolved alert (e.g. loaded from the
// store at startup) without emitting a decision.
func (d *Deduper) Seed(key Key, alertID int64, lastSeen time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[key] = &openAlert{alertID: alertID, lastSeen: lastSeen}
}

// Evaluate is called for every telemetry evaluation whose category is High
// or Critical. It returns whether a new alert must be created; if one
// already exists for this key, its last-seen timestamp is refreshed and no
// duplicate is signaled.
func (d *Deduper) Evaluate(key Key, now time.Time) Decision {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.open[key]; ok {
		existing.lastSeen = now
		existing.consecutiveClear = 0
		return Decision{IsNew: false, Key: key, AlertID: existing.alertID}
	}

	return Decision{IsNew: true, Key: key}
}

// Open records a newly created alert's id against its key, after the
// caller has persisted it. Must be called exactly once per Decision with
// IsNew == true.
func (d *Deduper) Open(key Key, alertID int64, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open[key] = &openAlert{alertID: alertID, lastSeen: now}
}

// ClosedAlert describes an alert the Deduper decided to auto-close.
type ClosedAlert struct {
	Key     Key
	AlertID int64
}

// ObserveClear registers that a tracked identifier reported a position
// outside every restricted region for one sample. After two consecutive
// clear samples for a given identifier+region+severity key, the alert
// auto-closes per spec.md §4.6(a).
func (d *Deduper) ObserveClear(externalID string, regionID int64, severity model.ThreatLevel) *ClosedAlert {
	key := Key{ExternalID: externalID, RegionID: regionID, Severity: severity}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.open[key]
	if !ok {
		return nil
	}
	existing.consecutiveClear++
	if existing.consecutiveClear < 2 {
		return nil
	}
	delete(d.open, key)
	return &ClosedAlert{Key: key, AlertID: existing.alertID}
}

// ObserveClearForIdentifier is ObserveClear generalized over every region
// and severity an identifier currently has an open alert under. A track
// leaving a restricted region doesn't know which region id it was last
// scored against (the sample itself is outside all of them), so it can't
// name a single Key the way ObserveClear requires; this instead walks every
// open key for the identifier and applies the same two-consecutive-clear
// rule to each independently, returning every alert that crossed the
// threshold this call.
func (d *Deduper) ObserveClearForIdentifier(externalID string) []ClosedAlert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var closed []ClosedAlert
	for key, alert := range d.open {
		if key.ExternalID != externalID {
			continue
		}
		alert.consecutiveClear++
		if alert.consecutiveClear < 2 {
			continue
		}
		closed = append(closed, ClosedAlert{Key: key, AlertID: alert.alertID})
		delete(d.open, key)
	}
	return closed
}

// SweepIdle closes every open alert whose track has produced no telemetry
// for longer than IdleWindow, per spec.md §4.6(b). Intended to be called
// periodically by a background ticker.
func (d *Deduper) SweepIdle(now time.Time) []ClosedAlert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var closed []ClosedAlert
	for key, alert := range d.open {
		if now.Sub(alert.lastSeen) > IdleWindow {
			closed = append(closed, ClosedAlert{Key: key, AlertID: alert.alertID})
			delete(d.open, key)
		}
	}
	return closed
}

// OpenCount reports the current size of the open-alert set, mostly useful
// for tests and metrics.
func (d *Deduper) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// Close removes one key from the open-alert set — used when an operator
// manually resolves an alert, so the Deduper doesn't keep treating the
// identifier as "already alerted."
func (d *Deduper) Close(key Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, key)
}
