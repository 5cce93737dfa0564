// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package constants holds shared identifiers and defaults for the
// attendance service.
package constants

import "time"

// Constants for the HTTP request headers
const (
	// AuthorizationHeader is the header name for the authorization
	AuthorizationHeader string = "authorization"

	// RequestIDHeader is the header name for the request ID
	RequestIDHeader string = "X-REQUEST-ID"
)

// contextRequestID is the type for the request ID context key
type contextRequestID string

// RequestIDContextID is the context ID for the request ID
const RequestIDContextID contextRequestID = "X-REQUEST-ID"

// contextAuthorization is the type for the authorization context key
type contextAuthorization string

// AuthorizationContextID is the context ID for the authorization
const AuthorizationContextID contextAuthorization = "authorization"

// contextPrincipal is the type for the principal context key
type contextPrincipal string

// PrincipalContextID is the context ID for the principal
const PrincipalContextID contextPrincipal = "x-on-behalf-of"

// Attendance defaults. The threshold and scheduled duration fall back to
// these when a meeting record carries no values of its own.
const (
	// DefaultAttendanceThreshold is the minimum attendance percentage for a
	// Present classification.
	DefaultAttendanceThreshold = 85

	// DefaultScheduledDurationMinutes is used when a meeting has no
	// scheduled duration on record.
	DefaultScheduledDurationMinutes = 60

	// DefaultPollingInterval is how often the reconciler fetches the
	// authoritative participant snapshot per tracked meeting.
	DefaultPollingInterval = 30 * time.Second

	// DefaultPollingGracePeriod is how long an identity may be absent from
	// authoritative snapshots before its session is force-closed. It must
	// cover at least one polling interval to avoid false positives from
	// transient API lag.
	DefaultPollingGracePeriod = 90 * time.Second
)
