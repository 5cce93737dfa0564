// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
	"github.com/classtrack/attendance-service/pkg/concurrent"
	"github.com/classtrack/attendance-service/pkg/constants"
	"github.com/classtrack/attendance-service/pkg/redaction"
)

// RejoinPolicy decides how a join after a closed session is counted.
type RejoinPolicy string

const (
	// RejoinPolicyReset starts a fresh session; only the newest session's
	// interval counts toward attendance.
	RejoinPolicyReset RejoinPolicy = "reset"
	// RejoinPolicyAccumulate starts a fresh session and sums the durations
	// of all the identity's sessions in the attendance view.
	RejoinPolicyAccumulate RejoinPolicy = "accumulate"
)

// SessionEngineConfig configures the session engine.
type SessionEngineConfig struct {
	// RejoinPolicy defaults to reset.
	RejoinPolicy RejoinPolicy
	// ThresholdPercent is the attendance threshold used for fan-out views.
	ThresholdPercent int
}

// SessionEngine owns every session state transition. All mutations for the
// same (meeting, identity) key are serialized on a keyed mutex, so the
// single-active-session invariant holds regardless of which channel the
// events arrive on.
type SessionEngine struct {
	sessionRepo domain.SessionRepository
	meetingRepo domain.MeetingRepository
	publisher   domain.TransitionPublisher
	counters    *metrics.Counters
	keys        *concurrent.KeyedMutex
	config      SessionEngineConfig
}

// NewSessionEngine creates a new session engine.
func NewSessionEngine(
	sessionRepo domain.SessionRepository,
	meetingRepo domain.MeetingRepository,
	publisher domain.TransitionPublisher,
	counters *metrics.Counters,
	config SessionEngineConfig,
) *SessionEngine {
	if config.RejoinPolicy == "" {
		config.RejoinPolicy = RejoinPolicyReset
	}
	if config.ThresholdPercent == 0 {
		config.ThresholdPercent = constants.DefaultAttendanceThreshold
	}
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &SessionEngine{
		sessionRepo: sessionRepo,
		meetingRepo: meetingRepo,
		publisher:   publisher,
		counters:    counters,
		keys:        concurrent.NewKeyedMutex(),
		config:      config,
	}
}

// ServiceReady checks if the engine's dependencies are available.
func (e *SessionEngine) ServiceReady() bool {
	return e.sessionRepo != nil && e.meetingRepo != nil && e.publisher != nil
}

// RejoinPolicy returns the configured rejoin policy.
func (e *SessionEngine) RejoinPolicy() RejoinPolicy {
	return e.config.RejoinPolicy
}

// Apply funnels a normalized event through the state machine. It returns the
// affected session (nil for meeting_ended) and the transition that actually
// happened; duplicates come back as TransitionNone with no error.
func (e *SessionEngine) Apply(ctx context.Context, event models.SessionEvent) (*models.Session, models.TransitionKind, error) {
	if !e.ServiceReady() {
		return nil, models.TransitionNone, domain.NewUnavailableError("session engine is not ready")
	}
	if event.MeetingUID == "" {
		return nil, models.TransitionNone, domain.NewValidationError("event has no meeting UID")
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", event.MeetingUID))
	ctx = logging.AppendCtx(ctx, slog.String("event_type", string(event.Type)))
	ctx = logging.AppendCtx(ctx, slog.String("event_source", string(event.Source)))

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	switch event.Type {
	case models.EventTypeJoin, models.EventTypeLeave:
		if event.Identity.Key == "" {
			return nil, models.TransitionNone, domain.NewValidationError("event has no identity key")
		}
		return e.applyWithRetry(ctx, event)
	case models.EventTypeMeetingEnded:
		return nil, models.TransitionNone, e.applyMeetingEnded(ctx, event)
	default:
		return nil, models.TransitionNone, domain.NewValidationError(
			fmt.Sprintf("unknown event type '%s'", event.Type))
	}
}

// applyWithRetry serializes the event on its (meeting, identity) key and
// retries once on a store conflict. Conflicts inside the lock only occur
// when another writer raced the same record through a different path, so a
// single re-read and re-apply converges.
func (e *SessionEngine) applyWithRetry(ctx context.Context, event models.SessionEvent) (*models.Session, models.TransitionKind, error) {
	unlock := e.keys.Lock(models.SessionKey(event.MeetingUID, event.Identity.Key))
	defer unlock()

	session, transition, err := e.applyLocked(ctx, event)
	if err != nil && domain.GetErrorType(err) == domain.ErrorTypeConflict {
		e.counters.StoreConflict()
		slog.WarnContext(ctx, "store conflict applying event, retrying once", logging.ErrKey, err)
		session, transition, err = e.applyLocked(ctx, event)
	}
	if err != nil {
		return nil, models.TransitionNone, err
	}

	if transition != models.TransitionNone {
		e.afterCommit(ctx, event.MeetingUID, session, transition)
	}

	return session, transition, nil
}

func (e *SessionEngine) applyLocked(ctx context.Context, event models.SessionEvent) (*models.Session, models.TransitionKind, error) {
	active, revision, err := e.sessionRepo.GetActive(ctx, event.MeetingUID, event.Identity.Key)
	if err != nil && domain.GetErrorType(err) != domain.ErrorTypeNotFound {
		return nil, models.TransitionNone, err
	}

	switch event.Type {
	case models.EventTypeJoin:
		return e.applyJoin(ctx, event, active, revision)
	case models.EventTypeLeave:
		return e.applyLeave(ctx, event, active, revision)
	}

	return nil, models.TransitionNone, domain.NewValidationError(
		fmt.Sprintf("unknown event type '%s'", event.Type))
}

// applyJoin opens a session for the identity. A join while a session is
// already active refreshes the record's join time to the new event's
// timestamp; no new session is opened and nothing is published.
func (e *SessionEngine) applyJoin(ctx context.Context, event models.SessionEvent, active *models.Session, revision uint64) (*models.Session, models.TransitionKind, error) {
	if active != nil {
		e.counters.DuplicateEvent()

		active.JoinTime = event.Timestamp
		if err := e.sessionRepo.Update(ctx, active, revision); err != nil {
			return nil, models.TransitionNone, err
		}

		slog.DebugContext(ctx, "duplicate join refreshed active session",
			"session_uid", active.UID,
			"email", redaction.RedactEmail(event.Identity.Email))
		return active, models.TransitionNone, nil
	}

	session := newSessionFromEvent(event)
	session.State = models.SessionStateActive

	if err := e.sessionRepo.Create(ctx, session); err != nil {
		return nil, models.TransitionNone, err
	}

	transition := models.TransitionSessionJoined
	if e.hasClosedSessions(ctx, event.MeetingUID, event.Identity.Key, session.UID) {
		transition = models.TransitionSessionRejoined
	}

	e.counters.SessionOpened()
	slog.InfoContext(ctx, "session opened",
		"session_uid", session.UID,
		"transition", string(transition),
		"email", redaction.RedactEmail(session.Email))

	return session, transition, nil
}

// applyLeave closes the identity's active session. A leave with no active
// session is idempotent, except for push events that carry a reported
// duration: those recover the never-observed join as a closed session.
func (e *SessionEngine) applyLeave(ctx context.Context, event models.SessionEvent, active *models.Session, revision uint64) (*models.Session, models.TransitionKind, error) {
	if active == nil {
		if event.Source == models.SourcePush && event.DurationSeconds > 0 {
			return e.recoverMissedJoin(ctx, event)
		}

		e.counters.DuplicateEvent()
		slog.DebugContext(ctx, "leave without active session ignored",
			"email", redaction.RedactEmail(event.Identity.Email))
		return nil, models.TransitionNone, nil
	}

	leaveTime := event.Timestamp
	active.LeaveTime = &leaveTime
	active.State = models.SessionStateClosed
	active.CloseReason = closeReasonFor(event)
	active.DurationMinutes = DurationMinutes(active.JoinTime, active.LeaveTime, leaveTime)

	if err := e.sessionRepo.Update(ctx, active, revision); err != nil {
		return nil, models.TransitionNone, err
	}

	e.counters.SessionClosed()
	slog.InfoContext(ctx, "session closed",
		"session_uid", active.UID,
		"close_reason", string(active.CloseReason),
		"duration_minutes", active.DurationMinutes,
		"email", redaction.RedactEmail(active.Email))

	return active, models.TransitionSessionLeft, nil
}

// recoverMissedJoin creates an already-closed session whose join time is
// back-computed from the payload-reported duration.
func (e *SessionEngine) recoverMissedJoin(ctx context.Context, event models.SessionEvent) (*models.Session, models.TransitionKind, error) {
	session := newSessionFromEvent(event)
	leaveTime := event.Timestamp
	session.JoinTime = leaveTime.Add(-time.Duration(event.DurationSeconds) * time.Second)
	session.LeaveTime = &leaveTime
	session.State = models.SessionStateClosed
	session.CloseReason = closeReasonFor(event)
	session.DurationMinutes = DurationMinutes(session.JoinTime, session.LeaveTime, leaveTime)

	if err := e.sessionRepo.Create(ctx, session); err != nil {
		return nil, models.TransitionNone, err
	}

	slog.InfoContext(ctx, "recovered session from leave without observed join",
		"session_uid", session.UID,
		"duration_minutes", session.DurationMinutes,
		"email", redaction.RedactEmail(session.Email))

	return session, models.TransitionSessionLeft, nil
}

// applyMeetingEnded force-closes every active session in the meeting at the
// event timestamp and marks the meeting ended. Individual close failures are
// logged and do not stop the sweep.
func (e *SessionEngine) applyMeetingEnded(ctx context.Context, event models.SessionEvent) error {
	active, err := e.sessionRepo.ListActiveByMeeting(ctx, event.MeetingUID)
	if err != nil {
		return err
	}

	for _, session := range active {
		leave := models.SessionEvent{
			Type:        models.EventTypeLeave,
			Source:      event.Source,
			MeetingUID:  session.MeetingUID,
			Identity:    models.Identity{Key: session.IdentityKey},
			Timestamp:   event.Timestamp,
			CloseReason: models.CloseReasonMeetingEnded,
		}
		if _, _, err := e.applyWithRetry(ctx, leave); err != nil {
			slog.ErrorContext(ctx, "failed to close session on meeting end",
				logging.ErrKey, err, "session_uid", session.UID)
		}
	}

	e.markMeetingEnded(ctx, event.MeetingUID, event.Timestamp)

	slog.InfoContext(ctx, "meeting ended, closed active sessions",
		"closed_count", len(active))
	return nil
}

func (e *SessionEngine) markMeetingEnded(ctx context.Context, meetingUID string, endTime time.Time) {
	meeting, revision, err := e.meetingRepo.GetWithRevision(ctx, meetingUID)
	if err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
			slog.ErrorContext(ctx, "failed to load meeting for end update", logging.ErrKey, err)
		}
		return
	}

	meeting.Status = models.MeetingStatusEnded
	meeting.EndTime = &endTime
	meeting.ActiveSessionCount = 0
	if err := e.meetingRepo.Update(ctx, meeting, revision); err != nil {
		slog.ErrorContext(ctx, "failed to mark meeting ended", logging.ErrKey, err)
	}
}

// afterCommit publishes the committed transition and refreshes the
// active-session gauge. Both are best effort: the transition is already
// durable, so fan-out failures are logged and swallowed.
func (e *SessionEngine) afterCommit(ctx context.Context, meetingUID string, session *models.Session, transition models.TransitionKind) {
	scheduled := e.scheduledDuration(ctx, meetingUID)

	msg := models.SessionTransitionMessage{
		MeetingUID: meetingUID,
		Transition: transition,
		Session:    *session,
		Attendance: Classify(session, scheduled, e.config.ThresholdPercent, time.Now()),
	}
	if err := e.publisher.PublishSessionTransition(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to publish session transition", logging.ErrKey, err,
			"transition", string(transition))
	}

	if active, err := e.sessionRepo.ListActiveByMeeting(ctx, meetingUID); err == nil {
		e.counters.SetActiveSessions(meetingUID, int64(len(active)))
	}
}

// scheduledDuration reads the meeting's scheduled duration, falling back to
// the default when the meeting is unknown.
func (e *SessionEngine) scheduledDuration(ctx context.Context, meetingUID string) int {
	meeting, err := e.meetingRepo.Get(ctx, meetingUID)
	if err != nil || meeting.ScheduledDurationMinutes <= 0 {
		return constants.DefaultScheduledDurationMinutes
	}
	return meeting.ScheduledDurationMinutes
}

// hasClosedSessions reports whether the identity already has closed session
// records in the meeting, excluding the given session UID.
func (e *SessionEngine) hasClosedSessions(ctx context.Context, meetingUID, identityKey, excludeUID string) bool {
	sessions, err := e.sessionRepo.ListByMeeting(ctx, meetingUID)
	if err != nil {
		return false
	}
	for _, s := range sessions {
		if s.IdentityKey == identityKey && s.UID != excludeUID && !s.IsActive() {
			return true
		}
	}
	return false
}

func newSessionFromEvent(event models.SessionEvent) *models.Session {
	session := &models.Session{
		MeetingUID:  event.MeetingUID,
		IdentityKey: event.Identity.Key,
		DisplayName: event.Identity.DisplayName,
		Email:       event.Identity.Email,
		Role:        event.Identity.Role,
		JoinTime:    event.Timestamp,
		Source:      event.Source,
	}
	if event.Identity.MatchedRoster != nil {
		session.MatchedRosterID = event.Identity.MatchedRoster.ID
	}
	return session
}

// closeReasonFor maps an explicit close reason or, failing that, the event
// source to the recorded close reason.
func closeReasonFor(event models.SessionEvent) models.CloseReason {
	if event.CloseReason != "" {
		return event.CloseReason
	}
	switch event.Source {
	case models.SourceToken:
		return models.CloseReasonSelfReported
	case models.SourcePoll:
		return models.CloseReasonPollingTimeout
	default:
		return models.CloseReasonPushEvent
	}
}
