// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package handlers wires NATS subjects into the attendance operations.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/service"
)

// WebhookHandler consumes push-channel webhook events. The push channel is
// at-least-once: every message is acked regardless of processing outcome,
// with failures surfaced through logs and metrics only, because duplicates
// and replays are already absorbed by the session engine.
type WebhookHandler struct {
	attendanceService *service.AttendanceService
	engine            *service.SessionEngine
	ingest            *service.EventIngest
	tracker           *service.TrackerService
}

// NewWebhookHandler creates a new webhook message handler.
func NewWebhookHandler(
	attendanceService *service.AttendanceService,
	engine *service.SessionEngine,
	ingest *service.EventIngest,
	tracker *service.TrackerService,
) *WebhookHandler {
	return &WebhookHandler{
		attendanceService: attendanceService,
		engine:            engine,
		ingest:            ingest,
		tracker:           tracker,
	}
}

// HandlerReady implements the domain.MessageHandler interface.
func (s *WebhookHandler) HandlerReady() bool {
	return s.attendanceService.ServiceReady() &&
		s.engine.ServiceReady() &&
		s.ingest.ServiceReady()
}

// HandleMessage implements the domain.MessageHandler interface.
func (s *WebhookHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))
	slog.DebugContext(ctx, "handling webhook NATS message")

	handlers := map[string]func(ctx context.Context, event models.WebhookEventMessage) error{
		models.WebhookMeetingStartedSubject:    s.HandleMeetingStarted,
		models.WebhookMeetingEndedSubject:      s.HandleMeetingEnded,
		models.WebhookParticipantJoinedSubject: s.HandleParticipantJoined,
		models.WebhookParticipantLeftSubject:   s.HandleParticipantLeft,
	}

	handler, ok := handlers[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown webhook subject")
		s.ack(ctx, msg)
		return
	}

	var event models.WebhookEventMessage
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.ErrorContext(ctx, "error unmarshaling webhook event", logging.ErrKey, err)
		s.ack(ctx, msg)
		return
	}

	if err := handler(ctx, event); err != nil {
		slog.ErrorContext(ctx, "error handling webhook event", logging.ErrKey, err)
	}

	s.ack(ctx, msg)
}

// ack acknowledges the message when a reply is expected. Webhook processing
// never naks: redelivery would only re-feed duplicates to the engine.
func (s *WebhookHandler) ack(ctx context.Context, msg domain.Message) {
	if !msg.HasReply() {
		return
	}
	if err := msg.Respond(nil); err != nil {
		slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
	}
}

// HandleMeetingStarted records the meeting and begins polling it.
func (s *WebhookHandler) HandleMeetingStarted(ctx context.Context, event models.WebhookEventMessage) error {
	payload, err := event.ToMeetingStartedPayload()
	if err != nil {
		return err
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", payload.Object.MeetingUID))

	err = s.attendanceService.RecordMeetingStarted(ctx,
		payload.Object.MeetingUID,
		payload.Object.Topic,
		payload.Object.StartTime,
		payload.Object.Duration,
	)
	if err != nil {
		return err
	}

	if s.tracker != nil {
		if err := s.tracker.StartTracking(ctx, payload.Object.MeetingUID); err != nil {
			slog.ErrorContext(ctx, "failed to start tracking meeting", logging.ErrKey, err)
		}
	}

	slog.InfoContext(ctx, "meeting started, tracking attendance")
	return nil
}

// HandleMeetingEnded closes all active sessions and stops polling.
func (s *WebhookHandler) HandleMeetingEnded(ctx context.Context, event models.WebhookEventMessage) error {
	payload, err := event.ToMeetingEndedPayload()
	if err != nil {
		return err
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", payload.Object.MeetingUID))

	if s.tracker != nil {
		s.tracker.StopTracking(payload.Object.MeetingUID)
	}

	if err := s.attendanceService.EndMeeting(ctx, payload.Object.MeetingUID, payload.Object.EndTime); err != nil {
		return err
	}

	slog.InfoContext(ctx, "meeting ended, attendance closed")
	return nil
}

// HandleParticipantJoined applies a push join.
func (s *WebhookHandler) HandleParticipantJoined(ctx context.Context, event models.WebhookEventMessage) error {
	payload, err := event.ToParticipantJoinedPayload()
	if err != nil {
		return err
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", payload.Object.MeetingUID))

	normalized, err := s.ingest.FromParticipantJoined(ctx, payload)
	if err != nil {
		return err
	}

	_, _, err = s.engine.Apply(ctx, *normalized)
	return err
}

// HandleParticipantLeft applies a push leave.
func (s *WebhookHandler) HandleParticipantLeft(ctx context.Context, event models.WebhookEventMessage) error {
	payload, err := event.ToParticipantLeftPayload()
	if err != nil {
		return err
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", payload.Object.MeetingUID))

	normalized, err := s.ingest.FromParticipantLeft(ctx, payload)
	if err != nil {
		return err
	}

	_, _, err = s.engine.Apply(ctx, *normalized)
	return err
}
