package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest cycle timing details.
type Snapshot struct {
	LastCycleTime   *time.Time `json:"last_cycle_time"`
	CycleDurationMS int64      `json:"cycle_duration_ms"`
	HostsUpdated    int        `json:"hosts_updated"`
}

// Tracker records cycle timing for health endpoints.
type Tracker struct {
	mu            sync.RWMutex
	lastCycle     time.Time
	cycleDuration time.Duration
	hostsUpdated  int
	ready         bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordCycle updates cycle timing and readiness.
func (t *Tracker) RecordCycle(duration time.Duration, hostsUpdated int) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastCycle = now
	t.cycleDuration = duration
	t.hostsUpdated = hostsUpdated
	t.ready = true
	t.mu.Unlock()
}

// Ready reports whether at least one cycle has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last cycle completed within two poll intervals.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ready {
		return false
	}
	if pollInterval <= 0 {
		return true
	}
	return now.Sub(t.lastCycle) <= 2*pollInterval
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := Snapshot{
		CycleDurationMS: t.cycleDuration.Milliseconds(),
		HostsUpdated:    t.hostsUpdated,
	}
	if !t.lastCycle.IsZero() {
		lastCycle := t.lastCycle
		snapshot.LastCycleTime = &lastCycle
	}
	return snapshot
}
