// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/identity"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
)

// EventIngest normalizes the three inbound channels into session events.
// Push payloads, authenticated self-reports, and reconciler synthesis all
// leave here as the same tagged shape, so the engine never needs to know
// where an event came from beyond its source label.
type EventIngest struct {
	resolver *identity.Resolver
	counters *metrics.Counters
}

// NewEventIngest creates a new event ingest.
func NewEventIngest(resolver *identity.Resolver, counters *metrics.Counters) *EventIngest {
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &EventIngest{
		resolver: resolver,
		counters: counters,
	}
}

// ServiceReady checks if the ingest's dependencies are available.
func (i *EventIngest) ServiceReady() bool {
	return i.resolver != nil
}

// FromParticipantJoined normalizes a push participant_joined payload.
func (i *EventIngest) FromParticipantJoined(ctx context.Context, payload *models.ParticipantJoinedPayload) (*models.SessionEvent, error) {
	if payload == nil || payload.Object.MeetingUID == "" {
		return nil, i.reject(ctx, "participant_joined payload has no meeting UID")
	}

	id, err := i.resolver.Resolve(ctx, identity.Credential{Participant: &payload.Object.Participant})
	if err != nil {
		i.counters.EventDropped()
		return nil, err
	}

	timestamp := payload.Object.Participant.JoinTime
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	i.counters.EventIngested()
	return &models.SessionEvent{
		Type:       models.EventTypeJoin,
		Source:     models.SourcePush,
		MeetingUID: payload.Object.MeetingUID,
		Identity:   *id,
		Timestamp:  timestamp,
	}, nil
}

// FromParticipantLeft normalizes a push participant_left payload.
func (i *EventIngest) FromParticipantLeft(ctx context.Context, payload *models.ParticipantLeftPayload) (*models.SessionEvent, error) {
	if payload == nil || payload.Object.MeetingUID == "" {
		return nil, i.reject(ctx, "participant_left payload has no meeting UID")
	}

	id, err := i.resolver.Resolve(ctx, identity.Credential{Participant: &payload.Object.Participant})
	if err != nil {
		i.counters.EventDropped()
		return nil, err
	}

	timestamp := payload.Object.Participant.LeaveTime
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	i.counters.EventIngested()
	return &models.SessionEvent{
		Type:            models.EventTypeLeave,
		Source:          models.SourcePush,
		MeetingUID:      payload.Object.MeetingUID,
		Identity:        *id,
		Timestamp:       timestamp,
		CloseReason:     models.CloseReasonPushEvent,
		DurationSeconds: payload.Object.Participant.Duration,
	}, nil
}

// FromMeetingEnded normalizes a push meeting_ended payload.
func (i *EventIngest) FromMeetingEnded(ctx context.Context, payload *models.MeetingEndedPayload) (*models.SessionEvent, error) {
	if payload == nil || payload.Object.MeetingUID == "" {
		return nil, i.reject(ctx, "meeting_ended payload has no meeting UID")
	}

	timestamp := payload.Object.EndTime
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	i.counters.EventIngested()
	return &models.SessionEvent{
		Type:       models.EventTypeMeetingEnded,
		Source:     models.SourcePush,
		MeetingUID: payload.Object.MeetingUID,
		Timestamp:  timestamp,
	}, nil
}

// FromSelfReport normalizes an authenticated check-in or check-out. The
// token is verified; an unverifiable token rejects the event.
func (i *EventIngest) FromSelfReport(ctx context.Context, meetingUID, token string, eventType models.EventType) (*models.SessionEvent, error) {
	if meetingUID == "" {
		return nil, i.reject(ctx, "self-report has no meeting UID")
	}
	if eventType != models.EventTypeJoin && eventType != models.EventTypeLeave {
		return nil, i.reject(ctx, "self-report must be a join or leave")
	}

	id, err := i.resolver.Resolve(ctx, identity.Credential{Token: token})
	if err != nil {
		i.counters.EventDropped()
		return nil, err
	}

	event := &models.SessionEvent{
		Type:       eventType,
		Source:     models.SourceToken,
		MeetingUID: meetingUID,
		Identity:   *id,
		Timestamp:  time.Now(),
	}
	if eventType == models.EventTypeLeave {
		event.CloseReason = models.CloseReasonSelfReported
	}

	i.counters.EventIngested()
	return event, nil
}

// FromReconciler builds a synthesized join or leave from the polling
// reconciler. The timestamp is the snapshot observation time.
func (i *EventIngest) FromReconciler(meetingUID string, id models.Identity, eventType models.EventType, observedAt time.Time) models.SessionEvent {
	event := models.SessionEvent{
		Type:       eventType,
		Source:     models.SourcePoll,
		MeetingUID: meetingUID,
		Identity:   id,
		Timestamp:  observedAt,
	}
	if eventType == models.EventTypeLeave {
		event.CloseReason = models.CloseReasonPollingTimeout
	}

	i.counters.EventIngested()
	return event
}

func (i *EventIngest) reject(ctx context.Context, message string) error {
	i.counters.EventDropped()
	slog.WarnContext(ctx, "rejected malformed event", logging.ErrKey, message)
	return domain.NewValidationError(message)
}
