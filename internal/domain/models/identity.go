// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

// Identity is the normalized participant identity used to key sessions.
// It is produced by the identity resolver from either a validated identity
// token or a push-event participant payload.
type Identity struct {
	// Key is the stable identity key: the token subject, or the platform
	// participant user id for push events.
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	// MatchedRoster is set when a best-effort roster lookup found a record
	// for this identity. Lookup failures leave it nil.
	MatchedRoster *RosterRecord `json:"matched_roster,omitempty"`
}

// RosterRecord is an external roster entry matched to an identity.
type RosterRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
