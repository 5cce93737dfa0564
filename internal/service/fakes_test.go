// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
)

// fakeSessionRepo is an in-memory SessionRepository with the same revision
// semantics as the NATS-backed implementation.
type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session // keyed by meetingUID/sessionUID
	revisions map[string]uint64
	active    map[string]string // meeting/identity -> session UID

	failNextUpdate bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions:  make(map[string]*models.Session),
		revisions: make(map[string]uint64),
		active:    make(map[string]string),
	}
}

func recordKey(meetingUID, sessionUID string) string {
	return meetingUID + "/" + sessionUID
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if session.UID == "" {
		session.UID = uuid.New().String()
	}
	now := time.Now()
	session.CreatedAt = &now
	session.UpdatedAt = &now

	copied := *session
	key := recordKey(session.MeetingUID, session.UID)
	f.sessions[key] = &copied
	f.revisions[key] = 1
	if session.IsActive() {
		f.active[session.Key()] = session.UID
	}
	return nil
}

func (f *fakeSessionRepo) GetWithRevision(ctx context.Context, meetingUID, sessionUID string) (*models.Session, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := recordKey(meetingUID, sessionUID)
	session, ok := f.sessions[key]
	if !ok {
		return nil, 0, domain.NewNotFoundError("session not found")
	}
	copied := *session
	return &copied, f.revisions[key], nil
}

func (f *fakeSessionRepo) Update(ctx context.Context, session *models.Session, revision uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextUpdate {
		f.failNextUpdate = false
		return domain.NewConflictError("session has been modified", fmt.Errorf("wrong last sequence"))
	}

	key := recordKey(session.MeetingUID, session.UID)
	if _, ok := f.sessions[key]; !ok {
		return domain.NewNotFoundError("session not found")
	}
	if f.revisions[key] != revision {
		return domain.NewConflictError("session has been modified", fmt.Errorf("wrong last sequence"))
	}

	now := time.Now()
	session.UpdatedAt = &now

	copied := *session
	f.sessions[key] = &copied
	f.revisions[key] = revision + 1
	if !session.IsActive() {
		delete(f.active, session.Key())
	}
	return nil
}

func (f *fakeSessionRepo) GetActive(ctx context.Context, meetingUID, identityKey string) (*models.Session, uint64, error) {
	f.mu.Lock()
	sessionUID, ok := f.active[models.SessionKey(meetingUID, identityKey)]
	f.mu.Unlock()
	if !ok {
		return nil, 0, domain.NewNotFoundError("no active session")
	}
	return f.GetWithRevision(ctx, meetingUID, sessionUID)
}

func (f *fakeSessionRepo) ListByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sessions []*models.Session
	for _, session := range f.sessions {
		if session.MeetingUID == meetingUID {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

func (f *fakeSessionRepo) ListActiveByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	sessions, _ := f.ListByMeeting(ctx, meetingUID)
	var active []*models.Session
	for _, session := range sessions {
		if session.IsActive() {
			active = append(active, session)
		}
	}
	return active, nil
}

// fakeMeetingRepo is an in-memory MeetingRepository.
type fakeMeetingRepo struct {
	mu        sync.Mutex
	meetings  map[string]*models.Meeting
	revisions map[string]uint64
}

func newFakeMeetingRepo() *fakeMeetingRepo {
	return &fakeMeetingRepo{
		meetings:  make(map[string]*models.Meeting),
		revisions: make(map[string]uint64),
	}
}

func (f *fakeMeetingRepo) Create(ctx context.Context, meeting *models.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := *meeting
	f.meetings[meeting.UID] = &copied
	f.revisions[meeting.UID] = 1
	return nil
}

func (f *fakeMeetingRepo) Get(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	meeting, _, err := f.GetWithRevision(ctx, meetingUID)
	return meeting, err
}

func (f *fakeMeetingRepo) GetWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	meeting, ok := f.meetings[meetingUID]
	if !ok {
		return nil, 0, domain.NewNotFoundError("meeting not found")
	}
	copied := *meeting
	return &copied, f.revisions[meetingUID], nil
}

func (f *fakeMeetingRepo) Update(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.meetings[meeting.UID]; !ok {
		return domain.NewNotFoundError("meeting not found")
	}
	if f.revisions[meeting.UID] != revision {
		return domain.NewConflictError("meeting has been modified", fmt.Errorf("wrong last sequence"))
	}

	copied := *meeting
	f.meetings[meeting.UID] = &copied
	f.revisions[meeting.UID] = revision + 1
	return nil
}

func (f *fakeMeetingRepo) Exists(ctx context.Context, meetingUID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.meetings[meetingUID]
	return ok, nil
}

func (f *fakeMeetingRepo) ListAll(ctx context.Context) ([]*models.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var meetings []*models.Meeting
	for _, meeting := range f.meetings {
		copied := *meeting
		meetings = append(meetings, &copied)
	}
	return meetings, nil
}

// capturePublisher records published fan-out messages.
type capturePublisher struct {
	mu          sync.Mutex
	transitions []models.SessionTransitionMessage
	statistics  []models.StatisticsMessage
}

func (p *capturePublisher) PublishSessionTransition(ctx context.Context, msg models.SessionTransitionMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, msg)
	return nil
}

func (p *capturePublisher) PublishStatistics(ctx context.Context, msg models.StatisticsMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statistics = append(p.statistics, msg)
	return nil
}

func (p *capturePublisher) Transitions() []models.SessionTransitionMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SessionTransitionMessage(nil), p.transitions...)
}

// fakePlatform serves configurable participant snapshots.
type fakePlatform struct {
	mu           sync.Mutex
	participants []domain.PlatformParticipant
	err          error
	calls        int
}

func (f *fakePlatform) setParticipants(participants ...domain.PlatformParticipant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = participants
	f.err = nil
}

func (f *fakePlatform) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePlatform) ListCurrentParticipants(ctx context.Context, meetingUID string) ([]domain.PlatformParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.PlatformParticipant(nil), f.participants...), nil
}
