// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"math"
	"time"

	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/pkg/constants"
)

// DurationMinutes computes a session's duration in whole minutes, rounded to
// the nearest minute. Active sessions are measured up to now. Negative
// intervals from clock skew clamp at zero.
func DurationMinutes(joinTime time.Time, leaveTime *time.Time, now time.Time) int {
	end := now
	if leaveTime != nil {
		end = *leaveTime
	}

	minutes := int(math.Round(end.Sub(joinTime).Minutes()))
	if minutes < 0 {
		return 0
	}
	return minutes
}

// Percentage computes attended share of the scheduled duration, rounded to
// the nearest whole percent. An unknown scheduled duration falls back to the
// default. Overstays exceed 100.
func Percentage(durationMinutes, scheduledMinutes int) int {
	if scheduledMinutes <= 0 {
		scheduledMinutes = constants.DefaultScheduledDurationMinutes
	}

	return int(math.Round(float64(durationMinutes) / float64(scheduledMinutes) * 100))
}

// ThresholdMinutes converts a percentage threshold into the minutes a
// participant must attend.
func ThresholdMinutes(scheduledMinutes, thresholdPercent int) int {
	if scheduledMinutes <= 0 {
		scheduledMinutes = constants.DefaultScheduledDurationMinutes
	}
	if thresholdPercent <= 0 {
		thresholdPercent = constants.DefaultAttendanceThreshold
	}

	return int(math.Round(float64(scheduledMinutes) * float64(thresholdPercent) / 100))
}

// Classify derives the attendance view for a session. The view is computed
// on every read so that changing the threshold reclassifies historical
// sessions consistently.
func Classify(session *models.Session, scheduledMinutes, thresholdPercent int, now time.Time) models.AttendanceView {
	duration := DurationMinutes(session.JoinTime, session.LeaveTime, now)
	return classifyDuration(duration, session.IsActive(), scheduledMinutes, thresholdPercent)
}

// classifyDuration classifies an already-aggregated duration. Sessions still
// active are in progress regardless of duration; meeting the threshold
// exactly counts as present.
func classifyDuration(durationMinutes int, active bool, scheduledMinutes, thresholdPercent int) models.AttendanceView {
	if thresholdPercent <= 0 {
		thresholdPercent = constants.DefaultAttendanceThreshold
	}

	view := models.AttendanceView{
		DurationMinutes:  durationMinutes,
		Percentage:       Percentage(durationMinutes, scheduledMinutes),
		ThresholdMinutes: ThresholdMinutes(scheduledMinutes, thresholdPercent),
	}

	switch {
	case active:
		view.Status = models.AttendanceStatusInProgress
	case view.Percentage >= thresholdPercent:
		view.Status = models.AttendanceStatusPresent
	default:
		view.Status = models.AttendanceStatusAbsent
	}

	return view
}
