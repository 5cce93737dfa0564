// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/infrastructure/auth"
	"github.com/classtrack/attendance-service/internal/infrastructure/messaging"
	"github.com/classtrack/attendance-service/internal/infrastructure/store"
	"github.com/classtrack/attendance-service/internal/logging"
)

const (
	// natsQueue is the queue group so that only one instance handles each
	// message when the service is scaled out.
	natsQueue = "attendance-service"

	natsConnectTimeout  = 10 * time.Second
	natsShutdownTimeout = 25 * time.Second
)

// setupJWTAuth configures JWT authentication for the service
func setupJWTAuth() (*auth.JWTAuth, error) {
	jwtAuthConfig := auth.JWTAuthConfig{
		JWKSURL:            os.Getenv("JWKS_URL"),
		Audience:           os.Getenv("JWT_AUDIENCE"),
		MockLocalPrincipal: os.Getenv("JWT_AUTH_DISABLED_MOCK_LOCAL_PRINCIPAL"),
	}
	return auth.NewJWTAuth(jwtAuthConfig)
}

// setupNATS connects to the NATS server. The connection participates in
// graceful shutdown: it is drained on termination, and an unexpected close
// triggers service shutdown.
func setupNATS(ctx context.Context, env environment, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	gracefulCloseWG.Add(1)

	natsConn, err := nats.Connect(
		env.NatsURL,
		nats.Timeout(natsConnectTimeout),
		nats.DrainTimeout(natsShutdownTimeout),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				slog.With(logging.ErrKey, err, "subject", sub.Subject).ErrorContext(ctx, "async NATS error")
				return
			}
			slog.With(logging.ErrKey, err).ErrorContext(ctx, "async NATS error")
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			slog.With(logging.ErrKey, conn.LastError()).InfoContext(ctx, "NATS connection closed")
			gracefulCloseWG.Done()
			// A close outside of graceful shutdown must take the service down
			// with it; readyz alone would leave in-flight trackers running.
			select {
			case done <- os.Interrupt:
			default:
			}
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		return nil, err
	}

	slog.InfoContext(ctx, "connected to NATS", "url", env.NatsURL)
	return natsConn, nil
}

// storeRepositories are the JetStream KV backed repositories.
type storeRepositories struct {
	Session *store.NatsSessionRepository
	Meeting *store.NatsMeetingRepository
}

// getKeyValueStores creates or binds the KV buckets for the service.
func getKeyValueStores(ctx context.Context, natsConn *nats.Conn) (*storeRepositories, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, err
	}

	sessions, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      store.KVStoreNameSessions,
		Description: "Attendance session records and active-session index",
	})
	if err != nil {
		return nil, err
	}

	meetings, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      store.KVStoreNameMeetings,
		Description: "Tracked meeting records",
	})
	if err != nil {
		return nil, err
	}

	return &storeRepositories{
		Session: store.NewNatsSessionRepository(sessions),
		Meeting: store.NewNatsMeetingRepository(meetings),
	}, nil
}

// createNatsSubcriptions subscribes the message handlers to their subjects.
func createNatsSubcriptions(ctx context.Context, natsConn *nats.Conn, subjects map[string]domain.MessageHandler) error {
	for subject, handler := range subjects {
		_, err := natsConn.QueueSubscribe(subject, natsQueue, func(msg *nats.Msg) {
			handler.HandleMessage(ctx, messaging.NewNatsMsg(msg))
		})
		if err != nil {
			slog.With(logging.ErrKey, err, "subject", subject).ErrorContext(ctx, "error subscribing to NATS subject")
			return err
		}
		slog.With("subject", subject, "queue", natsQueue).DebugContext(ctx, "subscribed to NATS subject")
	}

	return nil
}
