// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/mocks"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/identity"
	"github.com/classtrack/attendance-service/internal/infrastructure/auth"
	"github.com/classtrack/attendance-service/internal/service"
)

type mockTokenVerifier struct {
	mock.Mock
}

func (m *mockTokenVerifier) ParseClaims(ctx context.Context, token string) (*auth.TokenClaims, error) {
	args := m.Called(ctx, token)
	var claims *auth.TokenClaims
	if args.Get(0) != nil {
		claims = args.Get(0).(*auth.TokenClaims)
	}
	return claims, args.Error(1)
}

func setupAttendanceHandlerForTesting() (*AttendanceHandler, *mockTokenVerifier, *mocks.MockSessionRepository, *mocks.MockMeetingRepository, *mocks.MockTransitionPublisher) {
	mockVerifier := new(mockTokenVerifier)
	mockSessionRepo := new(mocks.MockSessionRepository)
	mockMeetingRepo := new(mocks.MockMeetingRepository)
	mockPublisher := new(mocks.MockTransitionPublisher)

	engine := service.NewSessionEngine(mockSessionRepo, mockMeetingRepo, mockPublisher, nil, service.SessionEngineConfig{})
	ingest := service.NewEventIngest(identity.NewResolver(mockVerifier, nil), nil)
	attendanceService := service.NewAttendanceService(engine, ingest, mockSessionRepo, mockMeetingRepo, mockPublisher, nil)

	handler := NewAttendanceHandler(attendanceService)
	return handler, mockVerifier, mockSessionRepo, mockMeetingRepo, mockPublisher
}

func TestAttendanceHandlerCheckIn(t *testing.T) {
	handler, mockVerifier, mockSessionRepo, mockMeetingRepo, mockPublisher := setupAttendanceHandlerForTesting()

	mockVerifier.On("ParseClaims", mock.Anything, "valid-token").Return(&auth.TokenClaims{
		Subject: "user-1",
		Name:    "Jane Doe",
		Email:   "jane@example.com",
	}, nil)
	mockSessionRepo.On("GetActive", mock.Anything, "meeting-1", "user-1").
		Return(nil, uint64(0), domain.NewNotFoundError("no active session"))
	mockSessionRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockSessionRepo.On("ListByMeeting", mock.Anything, "meeting-1").Return(nil, nil)
	mockSessionRepo.On("ListActiveByMeeting", mock.Anything, "meeting-1").Return(nil, nil)
	mockMeetingRepo.On("Get", mock.Anything, "meeting-1").
		Return(nil, domain.NewNotFoundError("meeting not found"))
	mockPublisher.On("PublishSessionTransition", mock.Anything, mock.Anything).Return(nil)

	data, err := json.Marshal(CheckInRequest{MeetingUID: "meeting-1", Token: "valid-token"})
	require.NoError(t, err)

	var response []byte
	mockMsg := mocks.NewMockMessageWithReply(data, models.AttendanceCheckInSubject, true)
	mockMsg.On("Respond", mock.Anything).Run(func(args mock.Arguments) {
		response = args.Get(0).([]byte)
	}).Return(nil)

	handler.HandleMessage(context.Background(), mockMsg)

	mockMsg.AssertExpectations(t)
	mockSessionRepo.AssertExpectations(t)
	require.NotEmpty(t, response)

	var attendance models.SessionAttendance
	require.NoError(t, json.Unmarshal(response, &attendance))
	assert.Equal(t, "meeting-1", attendance.Session.MeetingUID)
	assert.Equal(t, "user-1", attendance.Session.IdentityKey)
	assert.Equal(t, models.SessionStateActive, attendance.Session.State)
	assert.Equal(t, models.AttendanceStatusInProgress, attendance.Attendance.Status)
}

func TestAttendanceHandlerCheckOut(t *testing.T) {
	activeSession := &models.Session{
		UID:         "session-1",
		MeetingUID:  "meeting-1",
		IdentityKey: "user-1",
		Email:       "jane@example.com",
		JoinTime:    time.Now().Add(-50 * time.Minute),
		State:       models.SessionStateActive,
		Source:      models.SourceToken,
	}

	handler, mockVerifier, mockSessionRepo, mockMeetingRepo, mockPublisher := setupAttendanceHandlerForTesting()

	mockVerifier.On("ParseClaims", mock.Anything, "valid-token").Return(&auth.TokenClaims{
		Subject: "user-1",
		Email:   "jane@example.com",
	}, nil)
	mockSessionRepo.On("GetActive", mock.Anything, "meeting-1", "user-1").
		Return(activeSession, uint64(5), nil)
	mockSessionRepo.On("Update", mock.Anything, mock.MatchedBy(func(s *models.Session) bool {
		return s.State == models.SessionStateClosed && s.CloseReason == models.CloseReasonSelfReported
	}), uint64(5)).Return(nil)
	mockSessionRepo.On("ListActiveByMeeting", mock.Anything, "meeting-1").Return(nil, nil)
	mockMeetingRepo.On("Get", mock.Anything, "meeting-1").
		Return(&models.Meeting{UID: "meeting-1", ScheduledDurationMinutes: 60}, nil)
	mockPublisher.On("PublishSessionTransition", mock.Anything, mock.Anything).Return(nil)

	data, err := json.Marshal(CheckInRequest{MeetingUID: "meeting-1", Token: "valid-token"})
	require.NoError(t, err)

	var response []byte
	mockMsg := mocks.NewMockMessageWithReply(data, models.AttendanceCheckOutSubject, true)
	mockMsg.On("Respond", mock.Anything).Run(func(args mock.Arguments) {
		response = args.Get(0).([]byte)
	}).Return(nil)

	handler.HandleMessage(context.Background(), mockMsg)

	mockMsg.AssertExpectations(t)
	mockSessionRepo.AssertExpectations(t)
	require.NotEmpty(t, response)

	var attendance models.SessionAttendance
	require.NoError(t, json.Unmarshal(response, &attendance))
	assert.Equal(t, models.SessionStateClosed, attendance.Session.State)
	assert.Equal(t, 50, attendance.Attendance.DurationMinutes)
	assert.Equal(t, models.AttendanceStatusAbsent, attendance.Attendance.Status)
}

func TestAttendanceHandlerGetAttendance(t *testing.T) {
	joinTime := time.Now().Add(-60 * time.Minute)
	leaveTime := joinTime.Add(55 * time.Minute)
	closedSession := &models.Session{
		UID:             "session-1",
		MeetingUID:      "meeting-1",
		IdentityKey:     "user-1",
		JoinTime:        joinTime,
		LeaveTime:       &leaveTime,
		DurationMinutes: 55,
		State:           models.SessionStateClosed,
		CloseReason:     models.CloseReasonPushEvent,
		Source:          models.SourcePush,
	}

	handler, _, mockSessionRepo, mockMeetingRepo, mockPublisher := setupAttendanceHandlerForTesting()

	mockSessionRepo.On("ListByMeeting", mock.Anything, "meeting-1").
		Return([]*models.Session{closedSession}, nil)
	mockMeetingRepo.On("Get", mock.Anything, "meeting-1").
		Return(&models.Meeting{UID: "meeting-1", ScheduledDurationMinutes: 60}, nil)
	mockPublisher.On("PublishStatistics", mock.Anything, mock.MatchedBy(func(msg models.StatisticsMessage) bool {
		return msg.MeetingUID == "meeting-1" && msg.Statistics.PresentCount == 1
	})).Return(nil)

	data, err := json.Marshal(GetAttendanceRequest{MeetingUID: "meeting-1"})
	require.NoError(t, err)

	var response []byte
	mockMsg := mocks.NewMockMessageWithReply(data, models.AttendanceGetSubject, true)
	mockMsg.On("Respond", mock.Anything).Run(func(args mock.Arguments) {
		response = args.Get(0).([]byte)
	}).Return(nil)

	handler.HandleMessage(context.Background(), mockMsg)

	mockMsg.AssertExpectations(t)
	mockPublisher.AssertExpectations(t)
	require.NotEmpty(t, response)

	var report models.AttendanceReport
	require.NoError(t, json.Unmarshal(response, &report))
	assert.Equal(t, "meeting-1", report.MeetingUID)
	assert.Equal(t, 85, report.Threshold)
	require.Len(t, report.Sessions, 1)
	assert.Equal(t, models.AttendanceStatusPresent, report.Sessions[0].Attendance.Status)
	assert.Equal(t, 1, report.Statistics.PresentCount)
}

func TestAttendanceHandlerErrors(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		messageData []byte
		setupMocks  func(*mockTokenVerifier)
	}{
		{
			name:        "unknown subject",
			subject:     "attendance.unknown",
			messageData: []byte(`{}`),
			setupMocks:  func(*mockTokenVerifier) {},
		},
		{
			name:        "malformed request body",
			subject:     models.AttendanceCheckInSubject,
			messageData: []byte(`{invalid`),
			setupMocks:  func(*mockTokenVerifier) {},
		},
		{
			name:        "missing meeting uid",
			subject:     models.AttendanceGetSubject,
			messageData: []byte(`{}`),
			setupMocks:  func(*mockTokenVerifier) {},
		},
		{
			name:        "rejected token",
			subject:     models.AttendanceCheckInSubject,
			messageData: []byte(`{"meeting_uid":"meeting-1","token":"bad-token"}`),
			setupMocks: func(verifier *mockTokenVerifier) {
				verifier.On("ParseClaims", mock.Anything, "bad-token").
					Return(nil, domain.NewValidationError("token is expired"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mockVerifier, _, _, _ := setupAttendanceHandlerForTesting()
			tt.setupMocks(mockVerifier)

			mockMsg := mocks.NewMockMessageWithReply(tt.messageData, tt.subject, true)
			mockMsg.On("Respond", []byte(nil)).Return(nil)

			handler.HandleMessage(context.Background(), mockMsg)

			mockMsg.AssertExpectations(t)
			mockVerifier.AssertExpectations(t)
		})
	}
}

func TestAttendanceHandlerHandlerReady(t *testing.T) {
	handler, _, _, _, _ := setupAttendanceHandlerForTesting()
	assert.True(t, handler.HandlerReady())
}
