// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package store implements the session and meeting repositories on NATS
// JetStream key-value buckets. Optimistic revisions back the per-key
// compare-and-swap discipline that the session engine relies on.
package store

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// NATS Key-Value store bucket names
const (
	// KVStoreNameSessions is the name of the KV store for attendance sessions.
	KVStoreNameSessions = "attendance-sessions"

	// KVStoreNameMeetings is the name of the KV store for tracked meetings.
	KVStoreNameMeetings = "attendance-meetings"
)

// tracerName is the instrumentation name for the store package.
const tracerName = "github.com/classtrack/attendance-service/internal/infrastructure/store"

// INatsKeyValue is the subset of the NATS KV interface the repositories use.
// This allows for mocking the store in tests.
type INatsKeyValue interface {
	ListKeys(context.Context, ...jetstream.WatchOpt) (jetstream.KeyLister, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(context.Context, string, []byte) (uint64, error)
	Update(context.Context, string, []byte, uint64) (uint64, error)
	Delete(context.Context, string, ...jetstream.KVDeleteOpt) error
}
