// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

import "fmt"

// Fan-out subjects for committed session transitions and statistics.
const (
	// SessionJoinedSubject carries every committed join transition.
	SessionJoinedSubject = "attendance.session.joined"

	// SessionLeftSubject carries every committed leave transition.
	SessionLeftSubject = "attendance.session.left"

	// AttendanceUpdatedSubjectPrefix is the per-meeting channel; the meeting
	// UID is appended as the final token.
	AttendanceUpdatedSubjectPrefix = "attendance.updated"

	// AttendanceStatsSubject is the aggregate statistics channel.
	AttendanceStatsSubject = "attendance.stats"
)

// Self-report subjects consumed by the attendance handlers. Requests carry a
// reply subject and receive the caller's attendance view.
const (
	AttendanceCheckInSubject  = "attendance.checkin"
	AttendanceCheckOutSubject = "attendance.checkout"
	AttendanceGetSubject      = "attendance.get"
)

// AttendanceUpdatedSubject builds the per-meeting fan-out subject.
func AttendanceUpdatedSubject(meetingUID string) string {
	return fmt.Sprintf("%s.%s", AttendanceUpdatedSubjectPrefix, meetingUID)
}

// SessionTransitionMessage is the fan-out record published for every
// committed session engine transition.
type SessionTransitionMessage struct {
	MeetingUID string         `json:"meeting_uid"`
	Transition TransitionKind `json:"transition"`
	Session    Session        `json:"session"`
	Attendance AttendanceView `json:"attendance"`
}

// StatisticsMessage is the fan-out record for the aggregate channel.
type StatisticsMessage struct {
	MeetingUID string               `json:"meeting_uid"`
	Statistics AttendanceStatistics `json:"statistics"`
}
