// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
)

func newTestMeeting(uid string) *models.Meeting {
	start := time.Now().Add(-5 * time.Minute)
	return &models.Meeting{
		UID:                      uid,
		Topic:                    "Weekly Sync",
		ScheduledDurationMinutes: 60,
		Status:                   models.MeetingStatusStarted,
		StartTime:                &start,
	}
}

func TestNatsMeetingRepositoryCreateGet(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		repo := NewNatsMeetingRepository(newMockNatsKeyValue())

		meeting := newTestMeeting("meeting-123")
		require.NoError(t, repo.Create(ctx, meeting))
		assert.NotNil(t, meeting.CreatedAt)

		got, err := repo.Get(ctx, "meeting-123")
		require.NoError(t, err)
		assert.Equal(t, "Weekly Sync", got.Topic)
		assert.Equal(t, 60, got.ScheduledDurationMinutes)
		assert.Equal(t, models.MeetingStatusStarted, got.Status)
	})

	t.Run("rejects missing UID", func(t *testing.T) {
		repo := NewNatsMeetingRepository(newMockNatsKeyValue())

		err := repo.Create(ctx, &models.Meeting{})
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})

	t.Run("not found", func(t *testing.T) {
		repo := NewNatsMeetingRepository(newMockNatsKeyValue())

		_, err := repo.Get(ctx, "missing")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))
	})
}

func TestNatsMeetingRepositoryUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("updates with matching revision", func(t *testing.T) {
		repo := NewNatsMeetingRepository(newMockNatsKeyValue())

		meeting := newTestMeeting("meeting-123")
		require.NoError(t, repo.Create(ctx, meeting))

		got, revision, err := repo.GetWithRevision(ctx, "meeting-123")
		require.NoError(t, err)

		end := time.Now()
		got.Status = models.MeetingStatusEnded
		got.EndTime = &end
		require.NoError(t, repo.Update(ctx, got, revision))

		updated, err := repo.Get(ctx, "meeting-123")
		require.NoError(t, err)
		assert.Equal(t, models.MeetingStatusEnded, updated.Status)
	})

	t.Run("stale revision yields conflict", func(t *testing.T) {
		repo := NewNatsMeetingRepository(newMockNatsKeyValue())

		meeting := newTestMeeting("meeting-123")
		require.NoError(t, repo.Create(ctx, meeting))

		got, revision, err := repo.GetWithRevision(ctx, "meeting-123")
		require.NoError(t, err)

		require.NoError(t, repo.Update(ctx, got, revision))

		err = repo.Update(ctx, got, revision)
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))
	})
}

func TestNatsMeetingRepositoryExists(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsMeetingRepository(newMockNatsKeyValue())

	require.NoError(t, repo.Create(ctx, newTestMeeting("meeting-123")))

	exists, err := repo.Exists(ctx, "meeting-123")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNatsMeetingRepositoryListAll(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsMeetingRepository(newMockNatsKeyValue())

	require.NoError(t, repo.Create(ctx, newTestMeeting("meeting-123")))
	require.NoError(t, repo.Create(ctx, newTestMeeting("meeting-456")))

	meetings, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, meetings, 2)
}
