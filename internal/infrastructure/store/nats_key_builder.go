// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// Key prefixes within the session bucket.
const (
	// KeyPrefixSession prefixes session records, keyed by session UID.
	KeyPrefixSession = "session"

	// KeyPrefixActive prefixes the active-session index entries, keyed by
	// (meeting, identity). The entry value is the active session's UID.
	KeyPrefixActive = "active"
)

// KeyBuilder builds consistent NATS KV keys. Identity keys can contain
// characters that NATS KV keys do not allow (emails in particular), so
// key segments are base64 encoded per segment.
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
type KeyBuilder struct{}

// NewKeyBuilder creates a new key builder.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{}
}

// SessionKey builds the record key for a session UID.
func (kb *KeyBuilder) SessionKey(meetingUID, sessionUID string) (string, error) {
	return kb.EncodeKey(fmt.Sprintf("%s/%s/%s", KeyPrefixSession, meetingUID, sessionUID))
}

// ActiveIndexKey builds the active-session index key for a (meeting,
// identity) pair.
func (kb *KeyBuilder) ActiveIndexKey(meetingUID, identityKey string) (string, error) {
	return kb.EncodeKey(fmt.Sprintf("%s/%s/%s", KeyPrefixActive, meetingUID, identityKey))
}

// EncodeKey encodes a key for the NATS KV store, base64 encoding each
// segment. From https://github.com/ripienaar/encodedkv
func (kb *KeyBuilder) EncodeKey(key string) (string, error) {
	res := []string{}
	for _, part := range strings.Split(strings.TrimPrefix(key, "/"), "/") {
		if part == ">" || part == "*" {
			res = append(res, part)
			continue
		}

		dst := make([]byte, base64.StdEncoding.EncodedLen(len(part)))
		base64.StdEncoding.Encode(dst, []byte(part))
		res = append(res, string(dst))
	}

	if len(res) == 0 {
		return "", nats.ErrInvalidKey
	}

	return strings.Join(res, "."), nil
}

// DecodeKey decodes an encoded NATS KV key back into its slash-separated
// form. From https://github.com/ripienaar/encodedkv
func (kb *KeyBuilder) DecodeKey(key string) (string, error) {
	res := []string{}
	for _, part := range strings.Split(key, ".") {
		k, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}

		res = append(res, string(k))
	}

	if len(res) == 0 {
		return "", nats.ErrInvalidKey
	}

	return strings.Join(res, "/"), nil
}
