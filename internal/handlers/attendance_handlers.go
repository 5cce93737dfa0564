// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

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

// CheckInRequest is the request body for self-reported check-in and
// check-out messages.
type CheckInRequest struct {
	MeetingUID string `json:"meeting_uid"`
	Token      string `json:"token"`
}

// GetAttendanceRequest is the request body for attendance report queries.
type GetAttendanceRequest struct {
	MeetingUID       string `json:"meeting_uid"`
	ThresholdPercent int    `json:"threshold_percent,omitempty"`
}

// AttendanceHandler serves the request-reply attendance API: token
// self-reports and attendance report queries.
type AttendanceHandler struct {
	attendanceService *service.AttendanceService
}

// NewAttendanceHandler creates a new attendance message handler.
func NewAttendanceHandler(attendanceService *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{
		attendanceService: attendanceService,
	}
}

// HandlerReady implements the domain.MessageHandler interface.
func (s *AttendanceHandler) HandlerReady() bool {
	return s.attendanceService.ServiceReady()
}

// HandleMessage implements the domain.MessageHandler interface.
func (s *AttendanceHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))

	var response []byte
	var err error

	handlers := map[string]func(ctx context.Context, msg domain.Message) ([]byte, error){
		models.AttendanceCheckInSubject:  s.HandleCheckIn,
		models.AttendanceCheckOutSubject: s.HandleCheckOut,
		models.AttendanceGetSubject:      s.HandleGetAttendance,
	}

	handler, ok := handlers[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown subject")
		if msg.HasReply() {
			err = msg.Respond(nil)
			if err != nil {
				slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			}
		}
		return
	}

	response, err = handler(ctx, msg)
	if err != nil {
		slog.ErrorContext(ctx, "error handling message",
			logging.ErrKey, err,
		)
		if msg.HasReply() {
			err = msg.Respond(nil)
			if err != nil {
				slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			}
		}
		return
	}

	if msg.HasReply() {
		err = msg.Respond(response)
		if err != nil {
			slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			return
		}
		slog.DebugContext(ctx, "responded to NATS message", "response", response)
	}
}

// HandleCheckIn opens a session from a token self-report.
func (s *AttendanceHandler) HandleCheckIn(ctx context.Context, msg domain.Message) ([]byte, error) {
	var req CheckInRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return nil, domain.NewValidationError("invalid check-in request", err)
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", req.MeetingUID))

	attendance, err := s.attendanceService.CheckIn(ctx, req.MeetingUID, req.Token)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "participant checked in")
	return json.Marshal(attendance)
}

// HandleCheckOut closes a session from a token self-report.
func (s *AttendanceHandler) HandleCheckOut(ctx context.Context, msg domain.Message) ([]byte, error) {
	var req CheckInRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return nil, domain.NewValidationError("invalid check-out request", err)
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", req.MeetingUID))

	attendance, err := s.attendanceService.CheckOut(ctx, req.MeetingUID, req.Token)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "participant checked out")
	return json.Marshal(attendance)
}

// HandleGetAttendance builds and returns the attendance report for a meeting.
func (s *AttendanceHandler) HandleGetAttendance(ctx context.Context, msg domain.Message) ([]byte, error) {
	var req GetAttendanceRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return nil, domain.NewValidationError("invalid attendance request", err)
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", req.MeetingUID))

	report, err := s.attendanceService.GetAttendance(ctx, req.MeetingUID, req.ThresholdPercent)
	if err != nil {
		return nil, err
	}

	return json.Marshal(report)
}
