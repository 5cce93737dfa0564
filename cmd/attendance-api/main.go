// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package main is the attendance service API that reconciles meeting
// attendance sessions from webhook, self-report, and polling channels, and
// handles NATS messages for the attendance service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/handlers"
	"github.com/classtrack/attendance-service/internal/identity"
	"github.com/classtrack/attendance-service/internal/infrastructure/messaging"
	"github.com/classtrack/attendance-service/internal/infrastructure/platform"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
	"github.com/classtrack/attendance-service/internal/service"
)

func main() {
	env := parseEnv()
	flags := parseFlags(env.Port)

	logging.InitStructureLogConfig()

	// Set up the JWT validator backing the token self-report channel.
	jwtAuth, err := setupJWTAuth()
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up JWT authentication")
		os.Exit(1)
	}

	counters := metrics.NewCounters()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	// Setup NATS connection
	natsConn, err := setupNATS(ctx, env, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}

	// Get the key-value stores for the service.
	repos, err := getKeyValueStores(ctx, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error getting key-value stores")
		return
	}

	publisher := messaging.NewNatsPublisher(natsConn, counters)

	// The platform client serves both the pull channel and the roster
	// lookup; without credentials the service runs on push and token
	// channels only.
	var platformAPI domain.PlatformClient
	var roster domain.RosterLookup
	if env.Platform.Enabled() {
		client := platform.NewClient(platform.Config{
			AccountID:    env.Platform.AccountID,
			ClientID:     env.Platform.ClientID,
			ClientSecret: env.Platform.ClientSecret,
			BaseURL:      env.Platform.BaseURL,
			AuthURL:      env.Platform.AuthURL,
		}, counters)
		platformAPI = client
		roster = client
	}

	// Initialize services
	resolver := identity.NewResolver(jwtAuth, roster)
	ingest := service.NewEventIngest(resolver, counters)
	engine := service.NewSessionEngine(repos.Session, repos.Meeting, publisher, counters, service.SessionEngineConfig{
		RejoinPolicy:     env.RejoinPolicy,
		ThresholdPercent: env.AttendanceThreshold,
	})
	attendanceService := service.NewAttendanceService(engine, ingest, repos.Session, repos.Meeting, publisher, counters)

	var tracker *service.TrackerService
	if platformAPI != nil {
		tracker = service.NewTrackerService(engine, ingest, platformAPI, counters, service.TrackerConfig{
			PollingInterval: env.PollingInterval,
			GracePeriod:     env.PollingGracePeriod,
		})
	}

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(attendanceService, engine, ingest, tracker)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService)

	subjects := map[string]domain.MessageHandler{
		models.WebhookMeetingStartedSubject:    webhookHandler,
		models.WebhookMeetingEndedSubject:      webhookHandler,
		models.WebhookParticipantJoinedSubject: webhookHandler,
		models.WebhookParticipantLeftSubject:   webhookHandler,
		models.AttendanceCheckInSubject:        attendanceHandler,
		models.AttendanceCheckOutSubject:       attendanceHandler,
		models.AttendanceGetSubject:            attendanceHandler,
	}

	ready := func() bool {
		return natsConn.IsConnected() && webhookHandler.HandlerReady() && attendanceHandler.HandlerReady()
	}
	httpServer := setupHTTPServer(flags, ready, counters, &gracefulCloseWG)

	// Create NATS subscriptions for the service.
	err = createNatsSubcriptions(ctx, natsConn, subjects)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS subscriptions")
		return
	}

	// Pick tracking back up for meetings that were still running when the
	// previous instance stopped.
	resumeTracking(ctx, repos.Meeting, tracker)

	slog.InfoContext(ctx, "attendance service started", "port", flags.Port)

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, natsConn, tracker, &gracefulCloseWG, cancel)
}

// resumeTracking restarts polling for every meeting still marked started.
func resumeTracking(ctx context.Context, meetingRepo domain.MeetingRepository, tracker *service.TrackerService) {
	if tracker == nil {
		return
	}

	meetings, err := meetingRepo.ListAll(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).ErrorContext(ctx, "error listing meetings to resume tracking")
		return
	}

	for _, meeting := range meetings {
		if meeting.Status != models.MeetingStatusStarted {
			continue
		}
		if err := tracker.StartTracking(ctx, meeting.UID); err != nil {
			slog.With(logging.ErrKey, err, "meeting_uid", meeting.UID).ErrorContext(ctx, "error resuming meeting tracking")
			continue
		}
		slog.With("meeting_uid", meeting.UID).InfoContext(ctx, "resumed tracking meeting")
	}
}

// gracefulShutdown stops the trackers, the HTTP server, and drains the NATS
// connection before exiting.
func gracefulShutdown(httpServer *http.Server, natsConn *nats.Conn, tracker *service.TrackerService, gracefulCloseWG *sync.WaitGroup, cancel context.CancelFunc) {
	slog.Info("shutting down attendance service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), natsShutdownTimeout)
	defer shutdownCancel()

	if tracker != nil {
		tracker.StopAll()
	}

	go func() {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.With(logging.ErrKey, err).Error("error shutting down http server")
		}
		gracefulCloseWG.Done()
	}()

	// Draining lets in-flight handlers finish; the ClosedHandler releases the
	// connection's slot in the wait group.
	if err := natsConn.Drain(); err != nil {
		slog.With(logging.ErrKey, err).Error("error draining NATS connection")
	}

	finished := make(chan struct{})
	go func() {
		gracefulCloseWG.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		slog.Info("graceful shutdown complete")
	case <-shutdownCtx.Done():
		slog.Error("graceful shutdown timed out")
	}

	cancel()
}
