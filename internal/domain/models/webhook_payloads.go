// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package models

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Push-channel webhook subjects. The transport layer publishes raw webhook
// events on these subjects; the webhook handlers consume them.
const (
	WebhookMeetingStartedSubject    = "attendance.webhook.meeting_started"
	WebhookMeetingEndedSubject      = "attendance.webhook.meeting_ended"
	WebhookParticipantJoinedSubject = "attendance.webhook.participant_joined"
	WebhookParticipantLeftSubject   = "attendance.webhook.participant_left"
)

// WebhookEventMessage is the envelope for push-channel webhook events.
// Payload stays untyped until a handler converts it to the typed payload for
// its event type, because each platform event carries a different shape.
type WebhookEventMessage struct {
	EventType string         `json:"event_type"`
	EventTS   int64          `json:"event_ts"`
	Payload   map[string]any `json:"payload"`
}

// WebhookParticipant is the participant object embedded in participant
// joined/left payloads.
type WebhookParticipant struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	JoinTime  time.Time `json:"join_time"`
	LeaveTime time.Time `json:"leave_time"`
	// Duration is the participant's presence in seconds, only set on left
	// events. Used to back-compute the join time when the joined event was
	// never delivered.
	Duration    int    `json:"duration"`
	LeaveReason string `json:"leave_reason"`
}

// ParticipantJoinedPayload is the typed payload for participant_joined events.
type ParticipantJoinedPayload struct {
	Object struct {
		MeetingUID  string             `json:"meeting_uid"`
		Topic       string             `json:"topic"`
		StartTime   time.Time          `json:"start_time"`
		Participant WebhookParticipant `json:"participant"`
	} `json:"object"`
}

// ParticipantLeftPayload is the typed payload for participant_left events.
type ParticipantLeftPayload struct {
	Object struct {
		MeetingUID  string             `json:"meeting_uid"`
		Topic       string             `json:"topic"`
		StartTime   time.Time          `json:"start_time"`
		Participant WebhookParticipant `json:"participant"`
	} `json:"object"`
}

// MeetingStartedPayload is the typed payload for meeting_started events.
type MeetingStartedPayload struct {
	Object struct {
		MeetingUID string    `json:"meeting_uid"`
		Topic      string    `json:"topic"`
		StartTime  time.Time `json:"start_time"`
		// Duration is the scheduled meeting duration in minutes.
		Duration int `json:"duration"`
	} `json:"object"`
}

// MeetingEndedPayload is the typed payload for meeting_ended events.
type MeetingEndedPayload struct {
	Object struct {
		MeetingUID string    `json:"meeting_uid"`
		Topic      string    `json:"topic"`
		StartTime  time.Time `json:"start_time"`
		EndTime    time.Time `json:"end_time"`
		Duration   int       `json:"duration"`
	} `json:"object"`
}

// decodePayload decodes the untyped payload map into the given typed payload
// struct. Timestamps arrive as RFC 3339 strings in the JSON payload.
func (w *WebhookEventMessage) decodePayload(expectedType string, out any) error {
	if w.EventType != expectedType {
		return fmt.Errorf("invalid event type: expected %s, got %s", expectedType, w.EventType)
	}

	config := mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	}
	decoder, err := mapstructure.NewDecoder(&config)
	if err != nil {
		return fmt.Errorf("failed to create payload decoder: %w", err)
	}
	if err := decoder.Decode(w.Payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", expectedType, err)
	}

	return nil
}

// ToParticipantJoinedPayload converts the webhook event to a typed participant joined payload
func (w *WebhookEventMessage) ToParticipantJoinedPayload() (*ParticipantJoinedPayload, error) {
	var payload ParticipantJoinedPayload
	if err := w.decodePayload("participant_joined", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToParticipantLeftPayload converts the webhook event to a typed participant left payload
func (w *WebhookEventMessage) ToParticipantLeftPayload() (*ParticipantLeftPayload, error) {
	var payload ParticipantLeftPayload
	if err := w.decodePayload("participant_left", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToMeetingStartedPayload converts the webhook event to a typed meeting started payload
func (w *WebhookEventMessage) ToMeetingStartedPayload() (*MeetingStartedPayload, error) {
	var payload MeetingStartedPayload
	if err := w.decodePayload("meeting_started", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToMeetingEndedPayload converts the webhook event to a typed meeting ended payload
func (w *WebhookEventMessage) ToMeetingEndedPayload() (*MeetingEndedPayload, error) {
	var payload MeetingEndedPayload
	if err := w.decodePayload("meeting_ended", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
