// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/classtrack/attendance-service/internal/domain/models"
)

// PlatformParticipant is one entry of the authoritative "currently present"
// snapshot returned by the meeting platform.
type PlatformParticipant struct {
	IdentityKey string `json:"identity_key"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
}

// PlatformClient is the external meeting-platform API used as the pull
// channel. Calls are fallible and subject to rate limiting; implementations
// retry with bounded backoff and respect context deadlines.
type PlatformClient interface {
	// ListCurrentParticipants fetches the authoritative set of identities
	// currently present in the meeting.
	ListCurrentParticipants(ctx context.Context, meetingUID string) ([]PlatformParticipant, error)
}

// RosterLookup is the external roster used for best-effort identity
// enrichment. Lookup failures are non-fatal to callers.
type RosterLookup interface {
	// FindByEmailOrID returns the roster record matching the given email or
	// external id, or a NotFound error.
	FindByEmailOrID(ctx context.Context, key string) (*models.RosterRecord, error)
}
