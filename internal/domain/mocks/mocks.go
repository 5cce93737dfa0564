// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package mocks contains testify mocks for the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
)

// MockSessionRepository is a mock implementation of domain.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetWithRevision(ctx context.Context, meetingUID, sessionUID string) (*models.Session, uint64, error) {
	args := m.Called(ctx, meetingUID, sessionUID)
	var session *models.Session
	if args.Get(0) != nil {
		session = args.Get(0).(*models.Session)
	}
	return session, args.Get(1).(uint64), args.Error(2)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *models.Session, revision uint64) error {
	args := m.Called(ctx, session, revision)
	return args.Error(0)
}

func (m *MockSessionRepository) GetActive(ctx context.Context, meetingUID, identityKey string) (*models.Session, uint64, error) {
	args := m.Called(ctx, meetingUID, identityKey)
	var session *models.Session
	if args.Get(0) != nil {
		session = args.Get(0).(*models.Session)
	}
	return session, args.Get(1).(uint64), args.Error(2)
}

func (m *MockSessionRepository) ListByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	args := m.Called(ctx, meetingUID)
	var sessions []*models.Session
	if args.Get(0) != nil {
		sessions = args.Get(0).([]*models.Session)
	}
	return sessions, args.Error(1)
}

func (m *MockSessionRepository) ListActiveByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	args := m.Called(ctx, meetingUID)
	var sessions []*models.Session
	if args.Get(0) != nil {
		sessions = args.Get(0).([]*models.Session)
	}
	return sessions, args.Error(1)
}

// MockMeetingRepository is a mock implementation of domain.MeetingRepository.
type MockMeetingRepository struct {
	mock.Mock
}

func (m *MockMeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	args := m.Called(ctx, meeting)
	return args.Error(0)
}

func (m *MockMeetingRepository) Get(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	args := m.Called(ctx, meetingUID)
	var meeting *models.Meeting
	if args.Get(0) != nil {
		meeting = args.Get(0).(*models.Meeting)
	}
	return meeting, args.Error(1)
}

func (m *MockMeetingRepository) GetWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	args := m.Called(ctx, meetingUID)
	var meeting *models.Meeting
	if args.Get(0) != nil {
		meeting = args.Get(0).(*models.Meeting)
	}
	return meeting, args.Get(1).(uint64), args.Error(2)
}

func (m *MockMeetingRepository) Update(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	args := m.Called(ctx, meeting, revision)
	return args.Error(0)
}

func (m *MockMeetingRepository) Exists(ctx context.Context, meetingUID string) (bool, error) {
	args := m.Called(ctx, meetingUID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMeetingRepository) ListAll(ctx context.Context) ([]*models.Meeting, error) {
	args := m.Called(ctx)
	var meetings []*models.Meeting
	if args.Get(0) != nil {
		meetings = args.Get(0).([]*models.Meeting)
	}
	return meetings, args.Error(1)
}

// MockTransitionPublisher is a mock implementation of domain.TransitionPublisher.
type MockTransitionPublisher struct {
	mock.Mock
}

func (m *MockTransitionPublisher) PublishSessionTransition(ctx context.Context, msg models.SessionTransitionMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockTransitionPublisher) PublishStatistics(ctx context.Context, msg models.StatisticsMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockPlatformClient is a mock implementation of domain.PlatformClient.
type MockPlatformClient struct {
	mock.Mock
}

func (m *MockPlatformClient) ListCurrentParticipants(ctx context.Context, meetingUID string) ([]domain.PlatformParticipant, error) {
	args := m.Called(ctx, meetingUID)
	var participants []domain.PlatformParticipant
	if args.Get(0) != nil {
		participants = args.Get(0).([]domain.PlatformParticipant)
	}
	return participants, args.Error(1)
}

// MockRosterLookup is a mock implementation of domain.RosterLookup.
type MockRosterLookup struct {
	mock.Mock
}

func (m *MockRosterLookup) FindByEmailOrID(ctx context.Context, key string) (*models.RosterRecord, error) {
	args := m.Called(ctx, key)
	var record *models.RosterRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*models.RosterRecord)
	}
	return record, args.Error(1)
}
