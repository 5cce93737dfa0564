// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

import (
	"fmt"
	"time"
)

// MeetingStatus is the lifecycle status of a tracked meeting.
type MeetingStatus string

const (
	MeetingStatusWaiting MeetingStatus = "waiting"
	MeetingStatusStarted MeetingStatus = "started"
	MeetingStatusEnded   MeetingStatus = "ended"
)

// Meeting is the scheduling and reconciliation context for attendance
// tracking. It is keyed by the platform meeting identifier.
type Meeting struct {
	UID                      string        `json:"uid"`
	Topic                    string        `json:"topic,omitempty"`
	ScheduledDurationMinutes int           `json:"scheduled_duration_minutes"`
	Status                   MeetingStatus `json:"status"`
	StartTime                *time.Time    `json:"start_time,omitempty"`
	EndTime                  *time.Time    `json:"end_time,omitempty"`
	ActiveSessionCount       int           `json:"active_session_count"`
	CreatedAt                *time.Time    `json:"created_at,omitempty"`
	UpdatedAt                *time.Time    `json:"updated_at,omitempty"`
}

// Tags generates a consistent set of tags for the meeting.
func (m *Meeting) Tags() []string {
	if m == nil {
		return nil
	}

	tags := []string{}

	if m.UID != "" {
		tags = append(tags, m.UID)
		tags = append(tags, fmt.Sprintf("meeting_uid:%s", m.UID))
	}

	if m.Topic != "" {
		tags = append(tags, fmt.Sprintf("topic:%s", m.Topic))
	}

	return tags
}
