// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
	"github.com/classtrack/attendance-service/pkg/constants"
)

// AttendanceService exposes the public attendance operations: authenticated
// self-reports, meeting lifecycle, and attendance reads.
type AttendanceService struct {
	engine      *SessionEngine
	ingest      *EventIngest
	sessionRepo domain.SessionRepository
	meetingRepo domain.MeetingRepository
	publisher   domain.TransitionPublisher
	counters    *metrics.Counters
}

// NewAttendanceService creates a new attendance service.
func NewAttendanceService(
	engine *SessionEngine,
	ingest *EventIngest,
	sessionRepo domain.SessionRepository,
	meetingRepo domain.MeetingRepository,
	publisher domain.TransitionPublisher,
	counters *metrics.Counters,
) *AttendanceService {
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &AttendanceService{
		engine:      engine,
		ingest:      ingest,
		sessionRepo: sessionRepo,
		meetingRepo: meetingRepo,
		publisher:   publisher,
		counters:    counters,
	}
}

// ServiceReady checks if the service's dependencies are available.
func (s *AttendanceService) ServiceReady() bool {
	return s.engine != nil && s.engine.ServiceReady() &&
		s.ingest != nil && s.ingest.ServiceReady() &&
		s.sessionRepo != nil && s.meetingRepo != nil
}

// CheckIn opens a session for the authenticated caller. Checking in while a
// session is already active is a no-op that returns the current view.
func (s *AttendanceService) CheckIn(ctx context.Context, meetingUID, token string) (*models.SessionAttendance, error) {
	event, err := s.ingest.FromSelfReport(ctx, meetingUID, token, models.EventTypeJoin)
	if err != nil {
		return nil, err
	}

	session, _, err := s.engine.Apply(ctx, *event)
	if err != nil {
		return nil, err
	}

	return s.sessionView(ctx, session), nil
}

// CheckOut closes the authenticated caller's active session. Checking out
// without an active session is idempotent and returns a nil view.
func (s *AttendanceService) CheckOut(ctx context.Context, meetingUID, token string) (*models.SessionAttendance, error) {
	event, err := s.ingest.FromSelfReport(ctx, meetingUID, token, models.EventTypeLeave)
	if err != nil {
		return nil, err
	}

	session, _, err := s.engine.Apply(ctx, *event)
	if err != nil {
		return nil, err
	}

	return s.sessionView(ctx, session), nil
}

// RecordMeetingStarted creates or refreshes the meeting record from a
// meeting_started event.
func (s *AttendanceService) RecordMeetingStarted(ctx context.Context, meetingUID, topic string, startTime time.Time, scheduledMinutes int) error {
	if meetingUID == "" {
		return domain.NewValidationError("meeting UID is required")
	}
	if scheduledMinutes <= 0 {
		scheduledMinutes = constants.DefaultScheduledDurationMinutes
	}
	if startTime.IsZero() {
		startTime = time.Now()
	}

	meeting, revision, err := s.meetingRepo.GetWithRevision(ctx, meetingUID)
	if err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
			return err
		}
		meeting = &models.Meeting{
			UID:                      meetingUID,
			Topic:                    topic,
			ScheduledDurationMinutes: scheduledMinutes,
			Status:                   models.MeetingStatusStarted,
			StartTime:                &startTime,
		}
		return s.meetingRepo.Create(ctx, meeting)
	}

	meeting.Topic = topic
	meeting.ScheduledDurationMinutes = scheduledMinutes
	meeting.Status = models.MeetingStatusStarted
	meeting.StartTime = &startTime
	meeting.EndTime = nil
	return s.meetingRepo.Update(ctx, meeting, revision)
}

// EndMeeting force-closes every active session in the meeting and marks the
// meeting ended.
func (s *AttendanceService) EndMeeting(ctx context.Context, meetingUID string, endTime time.Time) error {
	var payload models.MeetingEndedPayload
	payload.Object.MeetingUID = meetingUID
	payload.Object.EndTime = endTime

	event, err := s.ingest.FromMeetingEnded(ctx, &payload)
	if err != nil {
		return err
	}

	_, _, err = s.engine.Apply(ctx, *event)
	return err
}

// GetAttendance builds the attendance report for a meeting. The threshold is
// a request-time parameter; zero uses the default. The report carries one
// entry per identity with durations aggregated per the rejoin policy, and
// the refreshed statistics are published to the aggregate channel.
func (s *AttendanceService) GetAttendance(ctx context.Context, meetingUID string, thresholdPercent int) (*models.AttendanceReport, error) {
	if meetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}
	if thresholdPercent <= 0 {
		thresholdPercent = constants.DefaultAttendanceThreshold
	}

	sessions, err := s.sessionRepo.ListByMeeting(ctx, meetingUID)
	if err != nil {
		return nil, err
	}

	scheduled := s.scheduledDuration(ctx, meetingUID)
	now := time.Now()

	report := &models.AttendanceReport{
		MeetingUID: meetingUID,
		Threshold:  thresholdPercent,
		Sessions:   s.aggregateByIdentity(sessions, scheduled, thresholdPercent, now),
	}
	report.Statistics = buildStatistics(meetingUID, sessions, report.Sessions)

	if s.publisher != nil {
		if err := s.publisher.PublishStatistics(ctx, models.StatisticsMessage{
			MeetingUID: meetingUID,
			Statistics: report.Statistics,
		}); err != nil {
			slog.ErrorContext(ctx, "failed to publish statistics", logging.ErrKey, err)
		}
	}

	return report, nil
}

// aggregateByIdentity folds session records into one attendance entry per
// identity. Under the reset policy only the newest session's interval
// counts; under accumulate the durations of all the identity's sessions sum.
func (s *AttendanceService) aggregateByIdentity(sessions []*models.Session, scheduled, thresholdPercent int, now time.Time) []models.SessionAttendance {
	byIdentity := make(map[string][]*models.Session)
	for _, session := range sessions {
		byIdentity[session.IdentityKey] = append(byIdentity[session.IdentityKey], session)
	}

	entries := make([]models.SessionAttendance, 0, len(byIdentity))
	for _, group := range byIdentity {
		sort.Slice(group, func(i, j int) bool {
			return group[i].JoinTime.Before(group[j].JoinTime)
		})
		latest := group[len(group)-1]

		duration := DurationMinutes(latest.JoinTime, latest.LeaveTime, now)
		if s.engine.RejoinPolicy() == RejoinPolicyAccumulate {
			duration = 0
			for _, session := range group {
				duration += DurationMinutes(session.JoinTime, session.LeaveTime, now)
			}
		}

		entries = append(entries, models.SessionAttendance{
			Session:    *latest,
			Attendance: classifyDuration(duration, latest.IsActive(), scheduled, thresholdPercent),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Session.IdentityKey < entries[j].Session.IdentityKey
	})
	return entries
}

func buildStatistics(meetingUID string, sessions []*models.Session, entries []models.SessionAttendance) models.AttendanceStatistics {
	stats := models.AttendanceStatistics{
		MeetingUID:    meetingUID,
		TotalSessions: len(sessions),
	}

	totalDuration := 0
	for _, entry := range entries {
		totalDuration += entry.Attendance.DurationMinutes
		switch entry.Attendance.Status {
		case models.AttendanceStatusInProgress:
			stats.InProgressCount++
		case models.AttendanceStatusPresent:
			stats.PresentCount++
		case models.AttendanceStatusAbsent:
			stats.AbsentCount++
		}
	}

	for _, session := range sessions {
		if session.IsActive() {
			stats.ActiveSessions++
		}
	}

	if len(entries) > 0 {
		stats.AverageDuration = totalDuration / len(entries)
	}

	return stats
}

// sessionView classifies a single session against the meeting's scheduled
// duration and the engine's configured threshold. Nil-safe for idempotent
// no-op transitions.
func (s *AttendanceService) sessionView(ctx context.Context, session *models.Session) *models.SessionAttendance {
	if session == nil {
		return nil
	}

	scheduled := s.scheduledDuration(ctx, session.MeetingUID)
	return &models.SessionAttendance{
		Session:    *session,
		Attendance: Classify(session, scheduled, s.engine.config.ThresholdPercent, time.Now()),
	}
}

func (s *AttendanceService) scheduledDuration(ctx context.Context, meetingUID string) int {
	meeting, err := s.meetingRepo.Get(ctx, meetingUID)
	if err != nil || meeting.ScheduledDurationMinutes <= 0 {
		return constants.DefaultScheduledDurationMinutes
	}
	return meeting.ScheduledDurationMinutes
}
