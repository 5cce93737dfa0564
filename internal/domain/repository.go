// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/classtrack/attendance-service/internal/domain/models"
)

// SessionRepository defines the storage operations for attendance sessions.
// This interface can be implemented by different storage backends (NATS KV,
// document stores, etc.). Revisions back the engine's optimistic-concurrency
// retry; they come from the store, never from callers inventing them.
type SessionRepository interface {
	// Create stores a new session record and registers it as the active
	// session for its (meeting, identity) key.
	Create(ctx context.Context, session *models.Session) error

	// GetWithRevision fetches a session record by meeting and session UID.
	GetWithRevision(ctx context.Context, meetingUID, sessionUID string) (*models.Session, uint64, error)

	// Update replaces a session record using optimistic concurrency control.
	// When the update closes the session, the active index entry for its
	// key is removed.
	Update(ctx context.Context, session *models.Session, revision uint64) error

	// GetActive returns the active session for a (meeting, identity) key,
	// or a NotFound error when no active session exists.
	GetActive(ctx context.Context, meetingUID, identityKey string) (*models.Session, uint64, error)

	// ListByMeeting returns every session record for a meeting, active and
	// closed.
	ListByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error)

	// ListActiveByMeeting returns only the active sessions for a meeting.
	ListActiveByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error)
}

// MeetingRepository defines the storage operations for meeting records.
type MeetingRepository interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	Get(ctx context.Context, meetingUID string) (*models.Meeting, error)
	GetWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error)
	Update(ctx context.Context, meeting *models.Meeting, revision uint64) error
	Exists(ctx context.Context, meetingUID string) (bool, error)
	ListAll(ctx context.Context) ([]*models.Meeting, error)
}
