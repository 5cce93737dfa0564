// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

import "time"

// EventType discriminates the normalized session events. Join/leave events
// from every source (push webhook, identity token, polling reconciler) are
// unified into this single tagged shape before reaching the session engine.
type EventType string

const (
	EventTypeJoin         EventType = "join"
	EventTypeLeave        EventType = "leave"
	EventTypeMeetingEnded EventType = "meeting_ended"
)

// SessionEvent is a normalized inbound event for the session engine.
type SessionEvent struct {
	Type       EventType   `json:"type"`
	Source     EventSource `json:"source"`
	MeetingUID string      `json:"meeting_uid"`
	// Identity is required for join and leave events; unused for meeting_ended.
	Identity Identity `json:"identity"`
	// Timestamp is the event-supplied occurrence time. It is authoritative
	// over arrival time for join/leave timestamps. For meeting_ended it is
	// the meeting end time applied to all force-closed sessions.
	Timestamp time.Time `json:"timestamp"`
	// CloseReason applies to leave events only.
	CloseReason CloseReason `json:"close_reason,omitempty"`
	// DurationSeconds is the payload-reported presence duration on push
	// leave events, used to back-compute the join time when no join was
	// ever observed. Zero means unknown.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// TransitionKind describes what the engine actually did with an event,
// published to fan-out subscribers alongside the session snapshot.
type TransitionKind string

const (
	TransitionSessionJoined   TransitionKind = "session_joined"
	TransitionSessionRejoined TransitionKind = "session_rejoined"
	TransitionSessionLeft     TransitionKind = "session_left"
	// TransitionNone means the event was a duplicate and changed nothing.
	TransitionNone TransitionKind = "none"
)
