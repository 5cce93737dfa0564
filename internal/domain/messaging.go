// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/classtrack/attendance-service/internal/domain/models"
)

// Message represents a domain message interface
type Message interface {
	Subject() string
	Data() []byte
	Respond(data []byte) error
	HasReply() bool
}

// MessageHandler defines how the service handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandlerReady() bool
}

// TransitionPublisher fans committed session transitions out to subscribers.
// Publishing is fire-and-forget from the engine's point of view: a slow or
// failed subscriber must never block or fail the underlying transition.
type TransitionPublisher interface {
	// PublishSessionTransition publishes a transition record to the
	// transition subject for its kind and to the meeting's channel.
	PublishSessionTransition(ctx context.Context, msg models.SessionTransitionMessage) error

	// PublishStatistics publishes aggregate statistics for a meeting.
	PublishStatistics(ctx context.Context, msg models.StatisticsMessage) error
}
