// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

// AttendanceStatus classifies a session against the attendance threshold.
type AttendanceStatus string

const (
	// AttendanceStatusInProgress applies while the session is still active.
	AttendanceStatusInProgress AttendanceStatus = "in_progress"
	AttendanceStatusPresent    AttendanceStatus = "present"
	AttendanceStatusAbsent     AttendanceStatus = "absent"
)

// AttendanceView is the derived classification of a session. It is never
// stored: the threshold is a request-time parameter, so recomputing on every
// read keeps historical sessions consistent when the threshold changes.
type AttendanceView struct {
	DurationMinutes  int              `json:"duration_minutes"`
	Percentage       int              `json:"percentage"`
	Status           AttendanceStatus `json:"status"`
	ThresholdMinutes int              `json:"threshold_minutes"`
}

// SessionAttendance pairs a session snapshot with its derived view.
type SessionAttendance struct {
	Session    Session        `json:"session"`
	Attendance AttendanceView `json:"attendance"`
}

// AttendanceStatistics aggregates a meeting's attendance at read time.
type AttendanceStatistics struct {
	MeetingUID      string `json:"meeting_uid"`
	TotalSessions   int    `json:"total_sessions"`
	ActiveSessions  int    `json:"active_sessions"`
	PresentCount    int    `json:"present_count"`
	AbsentCount     int    `json:"absent_count"`
	InProgressCount int    `json:"in_progress_count"`
	AverageDuration int    `json:"average_duration_minutes"`
}

// AttendanceReport is the full result of an attendance query for a meeting.
type AttendanceReport struct {
	MeetingUID string               `json:"meeting_uid"`
	Threshold  int                  `json:"threshold"`
	Sessions   []SessionAttendance  `json:"sessions"`
	Statistics AttendanceStatistics `json:"statistics"`
}
