// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/identity"
	"github.com/classtrack/attendance-service/internal/metrics"
)

type trackerFixture struct {
	tracker  *TrackerService
	engine   *SessionEngine
	sessions *fakeSessionRepo
	meetings *fakeMeetingRepo
	platform *fakePlatform
	counters *metrics.Counters
}

func newTrackerFixture(t *testing.T, config TrackerConfig) *trackerFixture {
	t.Helper()

	sessions := newFakeSessionRepo()
	meetings := newFakeMeetingRepo()
	publisher := &capturePublisher{}
	counters := metrics.NewCounters()
	platform := &fakePlatform{}

	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, meetings.Create(context.Background(), &models.Meeting{
		UID:                      "meeting-123",
		ScheduledDurationMinutes: 60,
		Status:                   models.MeetingStatusStarted,
		StartTime:                &start,
	}))

	engine := NewSessionEngine(sessions, meetings, publisher, counters, SessionEngineConfig{})
	ingest := NewEventIngest(identity.NewResolver(nil, nil), counters)

	return &trackerFixture{
		tracker:  NewTrackerService(engine, ingest, platform, counters, config),
		engine:   engine,
		sessions: sessions,
		meetings: meetings,
		platform: platform,
		counters: counters,
	}
}

func newTickTracker() *meetingTracker {
	return &meetingTracker{
		cancel:   func() {},
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

func TestTrackerTickSynthesizesJoins(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{})

	f.platform.setParticipants(
		domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe", Email: "jane.doe@example.org"},
		domain.PlatformParticipant{IdentityKey: "u-2", Name: "John Roe"},
	)

	f.tracker.tick(ctx, "meeting-123", newTickTracker())

	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, session := range active {
		assert.Equal(t, models.SourcePoll, session.Source)
	}
}

func TestTrackerTickIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{})

	f.platform.setParticipants(
		domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe"},
	)

	tracker := newTickTracker()
	f.tracker.tick(ctx, "meeting-123", tracker)
	f.tracker.tick(ctx, "meeting-123", tracker)
	f.tracker.tick(ctx, "meeting-123", tracker)

	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, int64(1), f.counters.Snapshot().SessionsOpened)
}

func TestTrackerTickExpiresMissingSessions(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{GracePeriod: 50 * time.Millisecond})

	// Jane joins via push, then stops appearing in snapshots.
	_, _, err := f.engine.Apply(ctx, joinEvent("u-1", time.Now().Add(-10*time.Minute)))
	require.NoError(t, err)

	f.platform.setParticipants()
	tracker := newTickTracker()

	// First miss starts the grace clock; the session stays active.
	f.tracker.tick(ctx, "meeting-123", tracker)
	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	time.Sleep(60 * time.Millisecond)

	// Grace period elapsed: a timeout leave is synthesized.
	f.tracker.tick(ctx, "meeting-123", tracker)
	active, err = f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Empty(t, active)

	sessions, err := f.sessions.ListByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.CloseReasonPollingTimeout, sessions[0].CloseReason)
	require.NotNil(t, sessions[0].LeaveTime)
	// the leave time is the last observed presence, not the tick time
	assert.True(t, sessions[0].LeaveTime.Before(time.Now().Add(-40*time.Millisecond)))
}

func TestTrackerTickWithinGraceKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{GracePeriod: time.Hour})

	_, _, err := f.engine.Apply(ctx, joinEvent("u-1", time.Now().Add(-10*time.Minute)))
	require.NoError(t, err)

	f.platform.setParticipants()
	tracker := newTickTracker()
	f.tracker.tick(ctx, "meeting-123", tracker)
	f.tracker.tick(ctx, "meeting-123", tracker)

	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTrackerTickReappearanceResetsGrace(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{GracePeriod: 50 * time.Millisecond})

	f.platform.setParticipants(domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe"})
	tracker := newTickTracker()
	f.tracker.tick(ctx, "meeting-123", tracker)

	// Drops out of one snapshot, then reappears before the grace elapses.
	f.platform.setParticipants()
	f.tracker.tick(ctx, "meeting-123", tracker)
	f.platform.setParticipants(domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe"})
	f.tracker.tick(ctx, "meeting-123", tracker)

	time.Sleep(60 * time.Millisecond)
	f.platform.setParticipants(domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe"})
	f.tracker.tick(ctx, "meeting-123", tracker)

	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTrackerTickSnapshotFailureSkips(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{GracePeriod: time.Millisecond})

	_, _, err := f.engine.Apply(ctx, joinEvent("u-1", time.Now().Add(-10*time.Minute)))
	require.NoError(t, err)

	f.platform.setError(errors.New("platform unavailable"))
	tracker := newTickTracker()
	f.tracker.tick(ctx, "meeting-123", tracker)

	// A failed snapshot must not expire anything.
	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTrackerTickNonOverlapping(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{})

	tracker := newTickTracker()
	tracker.inFlight.Store(true)

	f.tracker.tick(ctx, "meeting-123", tracker)

	snap := f.counters.Snapshot()
	assert.Equal(t, int64(1), snap.ReconcilerSkips)
	assert.Equal(t, int64(0), snap.ReconcilerTicks)
	assert.Equal(t, 0, f.platform.calls)
}

func TestTrackerStartStop(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{PollingInterval: 10 * time.Millisecond})

	f.platform.setParticipants(domain.PlatformParticipant{IdentityKey: "u-1", Name: "Jane Doe"})

	require.NoError(t, f.tracker.StartTracking(ctx, "meeting-123"))
	assert.True(t, f.tracker.IsTracking("meeting-123"))

	// starting again is a no-op
	require.NoError(t, f.tracker.StartTracking(ctx, "meeting-123"))

	// wait for at least the immediate tick
	assert.Eventually(t, func() bool {
		active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
		return err == nil && len(active) == 1
	}, time.Second, 5*time.Millisecond)

	f.tracker.StopTracking("meeting-123")
	assert.False(t, f.tracker.IsTracking("meeting-123"))

	// stopping again is a no-op
	f.tracker.StopTracking("meeting-123")

	err := f.tracker.StartTracking(ctx, "")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestTrackerStopAll(t *testing.T) {
	ctx := context.Background()
	f := newTrackerFixture(t, TrackerConfig{PollingInterval: 10 * time.Millisecond})

	require.NoError(t, f.meetings.Create(ctx, &models.Meeting{UID: "meeting-456"}))
	require.NoError(t, f.tracker.StartTracking(ctx, "meeting-123"))
	require.NoError(t, f.tracker.StartTracking(ctx, "meeting-456"))

	f.tracker.StopAll()
	assert.False(t, f.tracker.IsTracking("meeting-123"))
	assert.False(t, f.tracker.IsTracking("meeting-456"))
}
