// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

import (
	"fmt"
	"time"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	// SessionStateActive means the participant is currently counted as present.
	SessionStateActive SessionState = "active"
	// SessionStateClosed is terminal. A new join after close creates a new
	// session record rather than reopening the closed one.
	SessionStateClosed SessionState = "closed"
)

// CloseReason records why a session was closed.
type CloseReason string

const (
	CloseReasonSelfReported   CloseReason = "self_reported"
	CloseReasonPushEvent      CloseReason = "push_event"
	CloseReasonPollingTimeout CloseReason = "polling_timeout"
	CloseReasonMeetingEnded   CloseReason = "meeting_ended"
)

// EventSource identifies which channel produced a session transition.
type EventSource string

const (
	// SourcePush is the webhook-style join/leave channel (at-least-once,
	// possibly duplicated or delayed).
	SourcePush EventSource = "push"
	// SourceToken is an authenticated self-report carrying an identity token.
	SourceToken EventSource = "token"
	// SourcePoll is the periodic authoritative snapshot reconciler.
	SourcePoll EventSource = "poll"
)

// Session records one participant's presence interval in one meeting.
// There is at most one active session per (meeting, identity) at any time.
type Session struct {
	UID             string       `json:"uid"`
	MeetingUID      string       `json:"meeting_uid"`
	IdentityKey     string       `json:"identity_key"`
	DisplayName     string       `json:"display_name"`
	Email           string       `json:"email,omitempty"`
	Role            string       `json:"role,omitempty"`
	JoinTime        time.Time    `json:"join_time"`
	LeaveTime       *time.Time   `json:"leave_time,omitempty"`
	DurationMinutes int          `json:"duration_minutes"`
	State           SessionState `json:"state"`
	CloseReason     CloseReason  `json:"close_reason,omitempty"`
	Source          EventSource  `json:"source"`
	// MatchedRosterID is a weak reference to an external roster record,
	// set when the identity resolver found a match. Lookup only, not owned.
	MatchedRosterID string     `json:"matched_roster_id,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// IsActive reports whether the session still counts the participant as present.
func (s *Session) IsActive() bool {
	return s != nil && s.State == SessionStateActive
}

// Key returns the canonical (meeting, identity) key for the session.
func (s *Session) Key() string {
	if s == nil {
		return ""
	}
	return SessionKey(s.MeetingUID, s.IdentityKey)
}

// SessionKey builds the canonical serialization key for a (meeting, identity)
// pair. All engine mutations for the same key are serialized on this value.
func SessionKey(meetingUID, identityKey string) string {
	return fmt.Sprintf("%s/%s", meetingUID, identityKey)
}

// Tags generates a consistent set of tags for the session, used for
// structured logging and downstream indexing.
func (s *Session) Tags() []string {
	if s == nil {
		return nil
	}

	tags := []string{}

	if s.UID != "" {
		tags = append(tags, s.UID)
		tags = append(tags, fmt.Sprintf("session_uid:%s", s.UID))
	}

	if s.MeetingUID != "" {
		tags = append(tags, fmt.Sprintf("meeting_uid:%s", s.MeetingUID))
	}

	if s.IdentityKey != "" {
		tags = append(tags, fmt.Sprintf("identity_key:%s", s.IdentityKey))
	}

	if s.Email != "" {
		tags = append(tags, fmt.Sprintf("email:%s", s.Email))
	}

	return tags
}
