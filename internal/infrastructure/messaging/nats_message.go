// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package messaging

import (
	"github.com/nats-io/nats.go"

	"github.com/classtrack/attendance-service/internal/domain"
)

// NatsMsg wraps a NATS message to satisfy the domain message interface the
// handlers consume.
type NatsMsg struct {
	msg *nats.Msg
}

// NewNatsMsg wraps the given NATS message.
func NewNatsMsg(msg *nats.Msg) *NatsMsg {
	return &NatsMsg{msg: msg}
}

var _ domain.Message = (*NatsMsg)(nil)

// Subject returns the subject of the message.
func (m *NatsMsg) Subject() string {
	return m.msg.Subject
}

// Data returns the payload of the message.
func (m *NatsMsg) Data() []byte {
	return m.msg.Data
}

// HasReply reports whether the message expects a reply.
func (m *NatsMsg) HasReply() bool {
	return m.msg.Reply != ""
}

// Respond replies to the message.
func (m *NatsMsg) Respond(data []byte) error {
	return m.msg.Respond(data)
}
