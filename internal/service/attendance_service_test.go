// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/identity"
	"github.com/classtrack/attendance-service/internal/infrastructure/auth"
	"github.com/classtrack/attendance-service/internal/metrics"
)

type serviceFixture struct {
	service   *AttendanceService
	engine    *SessionEngine
	sessions  *fakeSessionRepo
	meetings  *fakeMeetingRepo
	publisher *capturePublisher
}

func newServiceFixture(t *testing.T, verifier identity.TokenVerifier, config SessionEngineConfig) *serviceFixture {
	t.Helper()

	sessions := newFakeSessionRepo()
	meetings := newFakeMeetingRepo()
	publisher := &capturePublisher{}
	counters := metrics.NewCounters()

	engine := NewSessionEngine(sessions, meetings, publisher, counters, config)
	ingest := NewEventIngest(identity.NewResolver(verifier, nil), counters)

	return &serviceFixture{
		service:   NewAttendanceService(engine, ingest, sessions, meetings, publisher, counters),
		engine:    engine,
		sessions:  sessions,
		meetings:  meetings,
		publisher: publisher,
	}
}

func (f *serviceFixture) startMeeting(t *testing.T, scheduledMinutes int, start time.Time) {
	t.Helper()
	require.NoError(t, f.service.RecordMeetingStarted(
		context.Background(), "meeting-123", "Weekly Lecture", start, scheduledMinutes))
}

func TestAttendanceServiceCheckInOut(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	verifier := &fakeVerifier{claims: &auth.TokenClaims{
		Subject: "user-1",
		Name:    "Jane Doe",
		Email:   "jane.doe@example.org",
	}}

	t.Run("check-in opens a session", func(t *testing.T) {
		f := newServiceFixture(t, verifier, SessionEngineConfig{})
		f.startMeeting(t, 60, base)

		view, err := f.service.CheckIn(ctx, "meeting-123", "token")
		require.NoError(t, err)
		assert.True(t, view.Session.IsActive())
		assert.Equal(t, models.SourceToken, view.Session.Source)
		assert.Equal(t, models.AttendanceStatusInProgress, view.Attendance.Status)
	})

	t.Run("double check-in returns the existing session", func(t *testing.T) {
		f := newServiceFixture(t, verifier, SessionEngineConfig{})
		f.startMeeting(t, 60, base)

		first, err := f.service.CheckIn(ctx, "meeting-123", "token")
		require.NoError(t, err)
		second, err := f.service.CheckIn(ctx, "meeting-123", "token")
		require.NoError(t, err)
		assert.Equal(t, first.Session.UID, second.Session.UID)
	})

	t.Run("check-out closes with self_reported", func(t *testing.T) {
		f := newServiceFixture(t, verifier, SessionEngineConfig{})
		f.startMeeting(t, 60, base)

		_, err := f.service.CheckIn(ctx, "meeting-123", "token")
		require.NoError(t, err)

		view, err := f.service.CheckOut(ctx, "meeting-123", "token")
		require.NoError(t, err)
		assert.Equal(t, models.SessionStateClosed, view.Session.State)
		assert.Equal(t, models.CloseReasonSelfReported, view.Session.CloseReason)
	})

	t.Run("check-out without check-in is idempotent", func(t *testing.T) {
		f := newServiceFixture(t, verifier, SessionEngineConfig{})
		f.startMeeting(t, 60, base)

		view, err := f.service.CheckOut(ctx, "meeting-123", "token")
		require.NoError(t, err)
		assert.Nil(t, view)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		f := newServiceFixture(t, &fakeVerifier{err: assert.AnError}, SessionEngineConfig{})
		f.startMeeting(t, 60, base)

		_, err := f.service.CheckIn(ctx, "meeting-123", "bad")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestAttendanceServiceRecordMeetingStarted(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	f := newServiceFixture(t, nil, SessionEngineConfig{})

	require.NoError(t, f.service.RecordMeetingStarted(ctx, "meeting-123", "Weekly Lecture", base, 45))

	meeting, err := f.meetings.Get(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Equal(t, 45, meeting.ScheduledDurationMinutes)
	assert.Equal(t, models.MeetingStatusStarted, meeting.Status)

	// a restart refreshes the record
	restart := base.Add(2 * time.Hour)
	require.NoError(t, f.service.RecordMeetingStarted(ctx, "meeting-123", "Weekly Lecture", restart, 90))

	meeting, err = f.meetings.Get(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Equal(t, 90, meeting.ScheduledDurationMinutes)
	assert.Equal(t, restart, *meeting.StartTime)
	assert.Nil(t, meeting.EndTime)

	err = f.service.RecordMeetingStarted(ctx, "", "x", base, 60)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestAttendanceServiceGetAttendance(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	seed := func(t *testing.T, f *serviceFixture) {
		t.Helper()
		f.startMeeting(t, 60, base)

		// jane: 52 minutes, present at the default threshold
		_, _, err := f.engine.Apply(ctx, joinEvent("jane", base))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("jane", base.Add(52*time.Minute)))
		require.NoError(t, err)

		// john: 30 minutes, absent
		_, _, err = f.engine.Apply(ctx, joinEvent("john", base))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("john", base.Add(30*time.Minute)))
		require.NoError(t, err)
	}

	t.Run("classifies per identity and aggregates statistics", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{})
		seed(t, f)

		report, err := f.service.GetAttendance(ctx, "meeting-123", 0)
		require.NoError(t, err)
		require.Len(t, report.Sessions, 2)
		assert.Equal(t, 85, report.Threshold)

		byKey := make(map[string]models.SessionAttendance)
		for _, entry := range report.Sessions {
			byKey[entry.Session.IdentityKey] = entry
		}
		assert.Equal(t, models.AttendanceStatusPresent, byKey["jane"].Attendance.Status)
		assert.Equal(t, 87, byKey["jane"].Attendance.Percentage)
		assert.Equal(t, models.AttendanceStatusAbsent, byKey["john"].Attendance.Status)

		assert.Equal(t, 2, report.Statistics.TotalSessions)
		assert.Equal(t, 1, report.Statistics.PresentCount)
		assert.Equal(t, 1, report.Statistics.AbsentCount)
		assert.Equal(t, 0, report.Statistics.ActiveSessions)
		assert.Equal(t, 41, report.Statistics.AverageDuration)
	})

	t.Run("request threshold reclassifies", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{})
		seed(t, f)

		report, err := f.service.GetAttendance(ctx, "meeting-123", 50)
		require.NoError(t, err)

		for _, entry := range report.Sessions {
			assert.Equal(t, models.AttendanceStatusPresent, entry.Attendance.Status)
		}
	})

	t.Run("publishes statistics", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{})
		seed(t, f)

		_, err := f.service.GetAttendance(ctx, "meeting-123", 0)
		require.NoError(t, err)
		require.Len(t, f.publisher.statistics, 1)
		assert.Equal(t, "meeting-123", f.publisher.statistics[0].MeetingUID)
	})

	t.Run("reset policy counts only the newest session", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{RejoinPolicy: RejoinPolicyReset})
		f.startMeeting(t, 60, base)

		_, _, err := f.engine.Apply(ctx, joinEvent("jane", base))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("jane", base.Add(20*time.Minute)))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, joinEvent("jane", base.Add(25*time.Minute)))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("jane", base.Add(55*time.Minute)))
		require.NoError(t, err)

		report, err := f.service.GetAttendance(ctx, "meeting-123", 0)
		require.NoError(t, err)
		require.Len(t, report.Sessions, 1)
		assert.Equal(t, 30, report.Sessions[0].Attendance.DurationMinutes)
		assert.Equal(t, models.AttendanceStatusAbsent, report.Sessions[0].Attendance.Status)
	})

	t.Run("accumulate policy sums all sessions", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{RejoinPolicy: RejoinPolicyAccumulate})
		f.startMeeting(t, 60, base)

		_, _, err := f.engine.Apply(ctx, joinEvent("jane", base))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("jane", base.Add(20*time.Minute)))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, joinEvent("jane", base.Add(25*time.Minute)))
		require.NoError(t, err)
		_, _, err = f.engine.Apply(ctx, leaveEvent("jane", base.Add(55*time.Minute)))
		require.NoError(t, err)

		report, err := f.service.GetAttendance(ctx, "meeting-123", 0)
		require.NoError(t, err)
		require.Len(t, report.Sessions, 1)
		assert.Equal(t, 50, report.Sessions[0].Attendance.DurationMinutes)
		assert.Equal(t, models.AttendanceStatusAbsent, report.Sessions[0].Attendance.Status)
	})

	t.Run("missing meeting UID is rejected", func(t *testing.T) {
		f := newServiceFixture(t, nil, SessionEngineConfig{})

		_, err := f.service.GetAttendance(ctx, "", 0)
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestAttendanceServiceEndMeeting(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	f := newServiceFixture(t, nil, SessionEngineConfig{})
	f.startMeeting(t, 60, base)

	_, _, err := f.engine.Apply(ctx, joinEvent("jane", base))
	require.NoError(t, err)

	require.NoError(t, f.service.EndMeeting(ctx, "meeting-123", base.Add(time.Hour)))

	active, err := f.sessions.ListActiveByMeeting(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Empty(t, active)

	meeting, err := f.meetings.Get(ctx, "meeting-123")
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusEnded, meeting.Status)
}
