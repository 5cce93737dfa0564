// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
)

// NatsMeetingRepository is the NATS KV store repository for tracked meetings.
// Meeting UIDs are platform identifiers and safe to use as KV keys directly.
type NatsMeetingRepository struct {
	Meetings INatsKeyValue
}

// NewNatsMeetingRepository creates a new NATS KV store repository for meetings.
func NewNatsMeetingRepository(meetings INatsKeyValue) *NatsMeetingRepository {
	return &NatsMeetingRepository{
		Meetings: meetings,
	}
}

// IsReady checks if the repository is ready for use.
func (s *NatsMeetingRepository) IsReady() bool {
	return s.Meetings != nil
}

func (s *NatsMeetingRepository) unmarshal(ctx context.Context, entry jetstream.KeyValueEntry) (*models.Meeting, error) {
	var meeting models.Meeting
	err := json.Unmarshal(entry.Value(), &meeting)
	if err != nil {
		slog.ErrorContext(ctx, "error unmarshaling meeting", logging.ErrKey, err)
		return nil, err
	}

	return &meeting, nil
}

// Create stores a new meeting record.
func (s *NatsMeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	if !s.IsReady() {
		return domain.NewUnavailableError("meeting repository is not available")
	}
	if meeting == nil || meeting.UID == "" {
		return domain.NewValidationError("meeting UID is required")
	}

	now := time.Now()
	meeting.CreatedAt = &now
	meeting.UpdatedAt = &now

	data, err := json.Marshal(meeting)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling meeting", logging.ErrKey, err)
		return domain.NewInternalError("failed to marshal meeting data", err)
	}

	if _, err := s.Meetings.Put(ctx, meeting.UID, data); err != nil {
		slog.ErrorContext(ctx, "error storing meeting in NATS KV", logging.ErrKey, err, "key", meeting.UID)
		return domain.NewInternalError("failed to store meeting in store", err)
	}

	return nil
}

// Get fetches a meeting record by UID.
func (s *NatsMeetingRepository) Get(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	meeting, _, err := s.GetWithRevision(ctx, meetingUID)
	return meeting, err
}

// GetWithRevision fetches a meeting record with its store revision.
func (s *NatsMeetingRepository) GetWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	if !s.IsReady() {
		return nil, 0, domain.NewUnavailableError("meeting repository is not available")
	}

	entry, err := s.Meetings.Get(ctx, meetingUID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, domain.NewNotFoundError(
				fmt.Sprintf("meeting with UID '%s' not found", meetingUID), err)
		}
		slog.ErrorContext(ctx, "error getting meeting from NATS KV", logging.ErrKey, err, "key", meetingUID)
		return nil, 0, domain.NewInternalError("failed to retrieve meeting from store", err)
	}

	meeting, err := s.unmarshal(ctx, entry)
	if err != nil {
		return nil, 0, domain.NewInternalError("failed to unmarshal meeting data", err)
	}

	return meeting, entry.Revision(), nil
}

// Update replaces a meeting record using optimistic concurrency control.
func (s *NatsMeetingRepository) Update(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	if !s.IsReady() {
		return domain.NewUnavailableError("meeting repository is not available")
	}
	if meeting == nil || meeting.UID == "" {
		return domain.NewValidationError("meeting UID is required")
	}

	now := time.Now()
	meeting.UpdatedAt = &now

	data, err := json.Marshal(meeting)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling meeting", logging.ErrKey, err)
		return domain.NewInternalError("failed to marshal meeting data", err)
	}

	if _, err := s.Meetings.Update(ctx, meeting.UID, data, revision); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return domain.NewNotFoundError("meeting not found", err)
		}
		if strings.Contains(err.Error(), "wrong last sequence") {
			return domain.NewConflictError("meeting has been modified", err)
		}
		slog.ErrorContext(ctx, "error updating meeting in NATS KV",
			logging.ErrKey, err, "key", meeting.UID, "revision", revision)
		return domain.NewInternalError("failed to update meeting in store", err)
	}

	return nil
}

// Exists checks if a meeting record exists.
func (s *NatsMeetingRepository) Exists(ctx context.Context, meetingUID string) (bool, error) {
	_, err := s.Get(ctx, meetingUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListAll returns every tracked meeting record.
func (s *NatsMeetingRepository) ListAll(ctx context.Context) ([]*models.Meeting, error) {
	if !s.IsReady() {
		return nil, domain.NewUnavailableError("meeting repository is not available")
	}

	lister, err := s.Meetings.ListKeys(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing meeting keys from NATS KV", logging.ErrKey, err)
		return nil, domain.NewInternalError("failed to list meeting keys from store", err)
	}

	var meetings []*models.Meeting
	for key := range lister.Keys() {
		meeting, err := s.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "failed to get meeting, skipping", "key", key, logging.ErrKey, err)
			continue
		}
		meetings = append(meetings, meeting)
	}

	return meetings, nil
}
