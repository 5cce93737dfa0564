// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package messaging publishes committed session transitions to NATS
// fan-out subjects.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
	"github.com/classtrack/attendance-service/pkg/concurrent"
)

// fanoutWorkerCount bounds concurrent publishes for a single transition.
const fanoutWorkerCount = 4

// INatsConn is the NATS connection interface needed for the publisher.
type INatsConn interface {
	IsConnected() bool
	Publish(subj string, data []byte) error
}

// NatsPublisher fans committed session transitions out over NATS. Each
// transition goes to the subject for its kind and to the meeting's own
// channel so subscribers can follow a single meeting without filtering.
type NatsPublisher struct {
	NatsConn INatsConn
	counters *metrics.Counters
	pool     *concurrent.WorkerPool
}

// NewNatsPublisher creates a new NATS fan-out publisher.
func NewNatsPublisher(natsConn INatsConn, counters *metrics.Counters) *NatsPublisher {
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &NatsPublisher{
		NatsConn: natsConn,
		counters: counters,
		pool:     concurrent.NewWorkerPool(fanoutWorkerCount),
	}
}

var _ domain.TransitionPublisher = (*NatsPublisher)(nil)

// IsReady checks if the publisher's connection is usable.
func (p *NatsPublisher) IsReady() bool {
	return p.NatsConn != nil && p.NatsConn.IsConnected()
}

// sendMessage sends the message to the NATS server.
func (p *NatsPublisher) sendMessage(ctx context.Context, subject string, data []byte) error {
	err := p.NatsConn.Publish(subject, data)
	if err != nil {
		p.counters.FanoutFailure()
		slog.ErrorContext(ctx, "error sending message to NATS", logging.ErrKey, err, "subject", subject)
		return err
	}
	p.counters.FanoutPublish()
	slog.DebugContext(ctx, "sent message to NATS", "subject", subject)
	return nil
}

// transitionSubject maps a transition kind to its fan-out subject. Rejoins
// are joins from a subscriber's point of view.
func transitionSubject(kind models.TransitionKind) string {
	switch kind {
	case models.TransitionSessionJoined, models.TransitionSessionRejoined:
		return models.SessionJoinedSubject
	case models.TransitionSessionLeft:
		return models.SessionLeftSubject
	default:
		return ""
	}
}

// PublishSessionTransition publishes a committed transition to the subject
// for its kind and to the meeting's channel. Duplicate events (TransitionNone)
// are not published.
func (p *NatsPublisher) PublishSessionTransition(ctx context.Context, msg models.SessionTransitionMessage) error {
	subject := transitionSubject(msg.Transition)
	if subject == "" {
		return nil
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling transition message into JSON", logging.ErrKey, err)
		return err
	}

	// One subscriber channel failing must not starve the other.
	errs := p.pool.RunAll(ctx,
		func() error {
			return p.sendMessage(ctx, subject, messageBytes)
		},
		func() error {
			return p.sendMessage(ctx, models.AttendanceUpdatedSubject(msg.MeetingUID), messageBytes)
		},
	)
	return errors.Join(errs...)
}

// PublishStatistics publishes aggregate statistics for a meeting.
func (p *NatsPublisher) PublishStatistics(ctx context.Context, msg models.StatisticsMessage) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling statistics message into JSON", logging.ErrKey, err)
		return err
	}

	return p.sendMessage(ctx, models.AttendanceStatsSubject, messageBytes)
}
