// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package metrics holds the service's operational counters. Counters are
// plain atomics updated on the hot path; Snapshot copies them out for the
// health endpoint and the periodic statistics publisher.
package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
)

// Counters is the set of operational counters for the attendance service.
type Counters struct {
	eventsIngested    atomic.Int64
	eventsDropped     atomic.Int64
	duplicateEvents   atomic.Int64
	sessionsOpened    atomic.Int64
	sessionsClosed    atomic.Int64
	storeConflicts    atomic.Int64
	externalCalls     atomic.Int64
	externalFailures  atomic.Int64
	externalRetries   atomic.Int64
	snapshotCacheHits atomic.Int64
	snapshotCacheMiss atomic.Int64
	reconcilerTicks   atomic.Int64
	reconcilerSkips   atomic.Int64
	fanoutPublishes   atomic.Int64
	fanoutFailures    atomic.Int64

	mu             sync.RWMutex
	activeSessions map[string]int64
}

// NewCounters creates a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{
		activeSessions: make(map[string]int64),
	}
}

func (c *Counters) EventIngested()     { c.eventsIngested.Add(1) }
func (c *Counters) EventDropped()      { c.eventsDropped.Add(1) }
func (c *Counters) DuplicateEvent()    { c.duplicateEvents.Add(1) }
func (c *Counters) SessionOpened()     { c.sessionsOpened.Add(1) }
func (c *Counters) SessionClosed()     { c.sessionsClosed.Add(1) }
func (c *Counters) StoreConflict()     { c.storeConflicts.Add(1) }
func (c *Counters) ExternalCall()      { c.externalCalls.Add(1) }
func (c *Counters) ExternalFailure()   { c.externalFailures.Add(1) }
func (c *Counters) ExternalRetry()     { c.externalRetries.Add(1) }
func (c *Counters) SnapshotCacheHit()  { c.snapshotCacheHits.Add(1) }
func (c *Counters) SnapshotCacheMiss() { c.snapshotCacheMiss.Add(1) }
func (c *Counters) ReconcilerTick()    { c.reconcilerTicks.Add(1) }
func (c *Counters) ReconcilerSkip()    { c.reconcilerSkips.Add(1) }
func (c *Counters) FanoutPublish()     { c.fanoutPublishes.Add(1) }
func (c *Counters) FanoutFailure()     { c.fanoutFailures.Add(1) }

// SetActiveSessions records the current active-session gauge for a meeting.
func (c *Counters) SetActiveSessions(meetingUID string, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count <= 0 {
		delete(c.activeSessions, meetingUID)
		return
	}
	c.activeSessions[meetingUID] = count
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	EventsIngested      int64            `json:"events_ingested"`
	EventsDropped       int64            `json:"events_dropped"`
	DuplicateEvents     int64            `json:"duplicate_events"`
	SessionsOpened      int64            `json:"sessions_opened"`
	SessionsClosed      int64            `json:"sessions_closed"`
	StoreConflicts      int64            `json:"store_conflicts"`
	ExternalCalls       int64            `json:"external_calls"`
	ExternalFailures    int64            `json:"external_failures"`
	ExternalRetries     int64            `json:"external_retries"`
	SnapshotCacheHits   int64            `json:"snapshot_cache_hits"`
	SnapshotCacheMisses int64            `json:"snapshot_cache_misses"`
	ReconcilerTicks     int64            `json:"reconciler_ticks"`
	ReconcilerSkips     int64            `json:"reconciler_skips"`
	FanoutPublishes     int64            `json:"fanout_publishes"`
	FanoutFailures      int64            `json:"fanout_failures"`
	ActiveSessions      map[string]int64 `json:"active_sessions"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.RLock()
	active := make(map[string]int64, len(c.activeSessions))
	maps.Copy(active, c.activeSessions)
	c.mu.RUnlock()

	return Snapshot{
		EventsIngested:      c.eventsIngested.Load(),
		EventsDropped:       c.eventsDropped.Load(),
		DuplicateEvents:     c.duplicateEvents.Load(),
		SessionsOpened:      c.sessionsOpened.Load(),
		SessionsClosed:      c.sessionsClosed.Load(),
		StoreConflicts:      c.storeConflicts.Load(),
		ExternalCalls:       c.externalCalls.Load(),
		ExternalFailures:    c.externalFailures.Load(),
		ExternalRetries:     c.externalRetries.Load(),
		SnapshotCacheHits:   c.snapshotCacheHits.Load(),
		SnapshotCacheMisses: c.snapshotCacheMiss.Load(),
		ReconcilerTicks:     c.reconcilerTicks.Load(),
		ReconcilerSkips:     c.reconcilerSkips.Load(),
		FanoutPublishes:     c.fanoutPublishes.Load(),
		FanoutFailures:      c.fanoutFailures.Load(),
		ActiveSessions:      active,
	}
}
