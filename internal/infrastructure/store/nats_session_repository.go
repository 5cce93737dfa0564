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

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
)

// NatsSessionRepository is the NATS KV store repository for attendance
// sessions. Each session is stored once under its record key; the active
// session per (meeting, identity) is tracked through an index entry whose
// value is the active session's UID.
type NatsSessionRepository struct {
	Sessions   INatsKeyValue
	keyBuilder *KeyBuilder
}

// NewNatsSessionRepository creates a new NATS KV store repository for sessions.
func NewNatsSessionRepository(sessions INatsKeyValue) *NatsSessionRepository {
	return &NatsSessionRepository{
		Sessions:   sessions,
		keyBuilder: NewKeyBuilder(),
	}
}

// IsReady checks if the repository is ready for use.
func (s *NatsSessionRepository) IsReady() bool {
	return s.Sessions != nil
}

func (s *NatsSessionRepository) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "nats.kv."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "nats"),
			attribute.String("db.operation", operation),
			attribute.String("db.nats.key", key),
			attribute.String("db.nats.entity", "session"),
		),
	)
}

func (s *NatsSessionRepository) unmarshal(ctx context.Context, entry jetstream.KeyValueEntry) (*models.Session, error) {
	var session models.Session
	err := json.Unmarshal(entry.Value(), &session)
	if err != nil {
		slog.ErrorContext(ctx, "error unmarshaling session", logging.ErrKey, err)
		return nil, err
	}

	return &session, nil
}

// Create stores a new session record and registers it as the active session
// for its (meeting, identity) key.
func (s *NatsSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if !s.IsReady() {
		return domain.NewUnavailableError("session repository is not available")
	}
	if session == nil || session.MeetingUID == "" || session.IdentityKey == "" {
		return domain.NewValidationError("session meeting UID and identity key are required")
	}

	if session.UID == "" {
		session.UID = uuid.New().String()
	}

	now := time.Now()
	session.CreatedAt = &now
	session.UpdatedAt = &now

	recordKey, err := s.keyBuilder.SessionKey(session.MeetingUID, session.UID)
	if err != nil {
		return domain.NewInternalError("failed to build session key", err)
	}

	ctx, span := s.startSpan(ctx, "put", recordKey)
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling session", logging.ErrKey, err)
		err = domain.NewInternalError("failed to marshal session data", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := s.Sessions.Put(ctx, recordKey, data); err != nil {
		slog.ErrorContext(ctx, "error storing session in NATS KV", logging.ErrKey, err, "key", recordKey)
		err = domain.NewInternalError("failed to store session in store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if session.IsActive() {
		if err := s.putActiveIndex(ctx, session); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *NatsSessionRepository) putActiveIndex(ctx context.Context, session *models.Session) error {
	indexKey, err := s.keyBuilder.ActiveIndexKey(session.MeetingUID, session.IdentityKey)
	if err != nil {
		return domain.NewInternalError("failed to build active index key", err)
	}

	if _, err := s.Sessions.Put(ctx, indexKey, []byte(session.UID)); err != nil {
		slog.ErrorContext(ctx, "error storing active session index", logging.ErrKey, err, "index_key", indexKey)
		return domain.NewInternalError("failed to store active session index", err)
	}

	return nil
}

func (s *NatsSessionRepository) deleteActiveIndex(ctx context.Context, session *models.Session) error {
	indexKey, err := s.keyBuilder.ActiveIndexKey(session.MeetingUID, session.IdentityKey)
	if err != nil {
		return domain.NewInternalError("failed to build active index key", err)
	}

	err = s.Sessions.Delete(ctx, indexKey)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.WarnContext(ctx, "error deleting active session index", logging.ErrKey, err, "index_key", indexKey)
		return domain.NewInternalError("failed to delete active session index", err)
	}

	return nil
}

// GetWithRevision fetches a session record by meeting and session UID.
func (s *NatsSessionRepository) GetWithRevision(ctx context.Context, meetingUID, sessionUID string) (*models.Session, uint64, error) {
	if !s.IsReady() {
		return nil, 0, domain.NewUnavailableError("session repository is not available")
	}

	recordKey, err := s.keyBuilder.SessionKey(meetingUID, sessionUID)
	if err != nil {
		return nil, 0, domain.NewInternalError("failed to build session key", err)
	}

	ctx, span := s.startSpan(ctx, "get", recordKey)
	defer span.End()

	entry, err := s.Sessions.Get(ctx, recordKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(fmt.Sprintf("session with UID '%s' not found", sessionUID), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "not found")
			return nil, 0, err
		}
		slog.ErrorContext(ctx, "error getting session from NATS KV", logging.ErrKey, err, "key", recordKey)
		err = domain.NewInternalError("failed to retrieve session from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	session, err := s.unmarshal(ctx, entry)
	if err != nil {
		return nil, 0, domain.NewInternalError("failed to unmarshal session data", err)
	}

	span.SetStatus(codes.Ok, "")
	return session, entry.Revision(), nil
}

// Update replaces a session record using optimistic concurrency control.
// Closing updates also remove the active index entry for the session's key.
func (s *NatsSessionRepository) Update(ctx context.Context, session *models.Session, revision uint64) error {
	if !s.IsReady() {
		return domain.NewUnavailableError("session repository is not available")
	}
	if session == nil || session.UID == "" {
		return domain.NewValidationError("session and session UID are required")
	}

	recordKey, err := s.keyBuilder.SessionKey(session.MeetingUID, session.UID)
	if err != nil {
		return domain.NewInternalError("failed to build session key", err)
	}

	ctx, span := s.startSpan(ctx, "update", recordKey)
	defer span.End()

	now := time.Now()
	session.UpdatedAt = &now

	data, err := json.Marshal(session)
	if err != nil {
		slog.ErrorContext(ctx, "error marshaling session", logging.ErrKey, err)
		err = domain.NewInternalError("failed to marshal session data", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := s.Sessions.Update(ctx, recordKey, data, revision); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError("session not found", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "not found")
			return err
		}
		if strings.Contains(err.Error(), "wrong last sequence") {
			err = domain.NewConflictError("session has been modified", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "conflict")
			return err
		}
		slog.ErrorContext(ctx, "error updating session in NATS KV",
			logging.ErrKey, err, "key", recordKey, "revision", revision)
		err = domain.NewInternalError("failed to update session in store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !session.IsActive() {
		if err := s.deleteActiveIndex(ctx, session); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetActive returns the active session for a (meeting, identity) key.
func (s *NatsSessionRepository) GetActive(ctx context.Context, meetingUID, identityKey string) (*models.Session, uint64, error) {
	if !s.IsReady() {
		return nil, 0, domain.NewUnavailableError("session repository is not available")
	}

	indexKey, err := s.keyBuilder.ActiveIndexKey(meetingUID, identityKey)
	if err != nil {
		return nil, 0, domain.NewInternalError("failed to build active index key", err)
	}

	entry, err := s.Sessions.Get(ctx, indexKey)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, domain.NewNotFoundError(
				fmt.Sprintf("no active session for meeting '%s'", meetingUID), err)
		}
		slog.ErrorContext(ctx, "error getting active session index from NATS KV",
			logging.ErrKey, err, "index_key", indexKey)
		return nil, 0, domain.NewInternalError("failed to retrieve active session index", err)
	}

	sessionUID := string(entry.Value())
	session, revision, err := s.GetWithRevision(ctx, meetingUID, sessionUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			// Index pointed at a record that no longer exists. Treat as no
			// active session; the stale index is cleaned up on next close.
			slog.WarnContext(ctx, "active session index points at missing record",
				"meeting_uid", meetingUID, "session_uid", sessionUID)
			return nil, 0, domain.NewNotFoundError(
				fmt.Sprintf("no active session for meeting '%s'", meetingUID), err)
		}
		return nil, 0, err
	}

	return session, revision, nil
}

// ListByMeeting returns every session record for a meeting, active and closed.
func (s *NatsSessionRepository) ListByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	return s.listByPrefix(ctx, fmt.Sprintf("%s/%s/", KeyPrefixSession, meetingUID))
}

// ListActiveByMeeting returns only the active sessions for a meeting.
func (s *NatsSessionRepository) ListActiveByMeeting(ctx context.Context, meetingUID string) ([]*models.Session, error) {
	sessions, err := s.listByPrefix(ctx, fmt.Sprintf("%s/%s/", KeyPrefixSession, meetingUID))
	if err != nil {
		return nil, err
	}

	var active []*models.Session
	for _, session := range sessions {
		if session.IsActive() {
			active = append(active, session)
		}
	}
	return active, nil
}

// listByPrefix lists session records whose decoded keys start with the given
// prefix. Keys are stored base64 encoded, so they are decoded before matching.
func (s *NatsSessionRepository) listByPrefix(ctx context.Context, prefix string) ([]*models.Session, error) {
	if !s.IsReady() {
		return nil, domain.NewUnavailableError("session repository is not available")
	}

	ctx, span := s.startSpan(ctx, "list_keys", prefix)
	defer span.End()

	lister, err := s.Sessions.ListKeys(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error listing session keys from NATS KV", logging.ErrKey, err)
		err = domain.NewInternalError("failed to list session keys from store", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var sessions []*models.Session
	for encodedKey := range lister.Keys() {
		decodedKey, err := s.keyBuilder.DecodeKey(encodedKey)
		if err != nil {
			slog.WarnContext(ctx, "failed to decode key, skipping",
				"encoded_key", encodedKey, logging.ErrKey, err)
			continue
		}

		if !strings.HasPrefix(decodedKey, prefix) {
			continue
		}

		entry, err := s.Sessions.Get(ctx, encodedKey)
		if err != nil {
			slog.WarnContext(ctx, "failed to get session, skipping",
				"key", encodedKey, logging.ErrKey, err)
			continue
		}

		session, err := s.unmarshal(ctx, entry)
		if err != nil {
			continue
		}

		sessions = append(sessions, session)
	}

	span.SetAttributes(attribute.Int("db.nats.keys_count", len(sessions)))
	span.SetStatus(codes.Ok, "")
	return sessions, nil
}
