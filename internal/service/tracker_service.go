// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/metrics"
	"github.com/classtrack/attendance-service/pkg/constants"
)

// TrackerConfig configures the polling reconciler.
type TrackerConfig struct {
	// PollingInterval is the time between authoritative snapshots.
	PollingInterval time.Duration
	// GracePeriod is how long an active session may be absent from
	// snapshots before a timeout leave is synthesized. Keeping it above the
	// polling interval tolerates a single missed or failed poll.
	GracePeriod time.Duration
}

// TrackerService reconciles tracked meetings against the platform's
// authoritative participant snapshots. Each tracked meeting gets one
// goroutine with its own ticker; ticks never overlap.
type TrackerService struct {
	engine   *SessionEngine
	ingest   *EventIngest
	platform domain.PlatformClient
	counters *metrics.Counters
	config   TrackerConfig

	mu       sync.Mutex
	trackers map[string]*meetingTracker
}

// meetingTracker is the per-meeting reconciliation state.
type meetingTracker struct {
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
	// lastSeen records when each identity was last observed present. Leaves
	// synthesized after the grace period use this as the leave time, since
	// the poller cannot know when between snapshots the participant left.
	lastSeen map[string]time.Time
}

// NewTrackerService creates a new polling reconciler.
func NewTrackerService(
	engine *SessionEngine,
	ingest *EventIngest,
	platform domain.PlatformClient,
	counters *metrics.Counters,
	config TrackerConfig,
) *TrackerService {
	if config.PollingInterval <= 0 {
		config.PollingInterval = constants.DefaultPollingInterval
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = constants.DefaultPollingGracePeriod
	}
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &TrackerService{
		engine:   engine,
		ingest:   ingest,
		platform: platform,
		counters: counters,
		config:   config,
		trackers: make(map[string]*meetingTracker),
	}
}

// ServiceReady checks if the tracker's dependencies are available.
func (t *TrackerService) ServiceReady() bool {
	return t.engine != nil && t.engine.ServiceReady() && t.ingest != nil && t.platform != nil
}

// StartTracking begins polling a meeting. Starting an already-tracked
// meeting is a no-op. The polling goroutine outlives the caller's request
// context and stops on StopTracking, StopAll, or meeting end.
func (t *TrackerService) StartTracking(ctx context.Context, meetingUID string) error {
	if !t.ServiceReady() {
		return domain.NewUnavailableError("tracker service is not ready")
	}
	if meetingUID == "" {
		return domain.NewValidationError("meeting UID is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.trackers[meetingUID]; exists {
		slog.DebugContext(ctx, "meeting is already tracked", "meeting_uid", meetingUID)
		return nil
	}

	trackCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	trackCtx = logging.AppendCtx(trackCtx, slog.String("meeting_uid", meetingUID))

	tracker := &meetingTracker{
		cancel:   cancel,
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	t.trackers[meetingUID] = tracker

	go t.run(trackCtx, meetingUID, tracker)

	slog.InfoContext(ctx, "started tracking meeting",
		"meeting_uid", meetingUID,
		"polling_interval", t.config.PollingInterval.String())
	return nil
}

// StopTracking stops polling a meeting. Stopping an untracked meeting is a
// no-op.
func (t *TrackerService) StopTracking(meetingUID string) {
	t.mu.Lock()
	tracker, exists := t.trackers[meetingUID]
	if exists {
		delete(t.trackers, meetingUID)
	}
	t.mu.Unlock()

	if exists {
		tracker.cancel()
		<-tracker.done
		slog.Info("stopped tracking meeting", "meeting_uid", meetingUID)
	}
}

// StopAll stops every tracker. Called on shutdown.
func (t *TrackerService) StopAll() {
	t.mu.Lock()
	trackers := t.trackers
	t.trackers = make(map[string]*meetingTracker)
	t.mu.Unlock()

	for meetingUID, tracker := range trackers {
		tracker.cancel()
		<-tracker.done
		slog.Info("stopped tracking meeting", "meeting_uid", meetingUID)
	}
}

// IsTracking reports whether a meeting is currently tracked.
func (t *TrackerService) IsTracking(meetingUID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, exists := t.trackers[meetingUID]
	return exists
}

func (t *TrackerService) run(ctx context.Context, meetingUID string, tracker *meetingTracker) {
	defer close(tracker.done)

	ticker := time.NewTicker(t.config.PollingInterval)
	defer ticker.Stop()

	// Reconcile immediately so tracking does not wait a full interval.
	t.tick(ctx, meetingUID, tracker)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx, meetingUID, tracker)
		}
	}
}

// tick runs one reconciliation pass. If the previous pass is still in
// flight the tick is skipped rather than queued.
func (t *TrackerService) tick(ctx context.Context, meetingUID string, tracker *meetingTracker) {
	if !tracker.inFlight.CompareAndSwap(false, true) {
		t.counters.ReconcilerSkip()
		slog.DebugContext(ctx, "previous reconciliation still in flight, skipping tick")
		return
	}
	defer tracker.inFlight.Store(false)

	t.counters.ReconcilerTick()

	participants, err := t.platform.ListCurrentParticipants(ctx, meetingUID)
	if err != nil {
		// The snapshot is retried inside the client; a tick that still
		// fails is skipped and the next interval tries again.
		slog.WarnContext(ctx, "participant snapshot failed, skipping reconciliation",
			logging.ErrKey, err)
		return
	}

	now := time.Now()

	present := make(map[string]domain.PlatformParticipant, len(participants))
	for _, participant := range participants {
		if participant.IdentityKey == "" {
			continue
		}
		present[participant.IdentityKey] = participant
		tracker.lastSeen[participant.IdentityKey] = now
	}

	active, err := t.engine.sessionRepo.ListActiveByMeeting(ctx, meetingUID)
	if err != nil {
		slog.WarnContext(ctx, "listing active sessions failed, skipping reconciliation",
			logging.ErrKey, err)
		return
	}

	activeKeys := make(map[string]struct{}, len(active))
	for _, session := range active {
		activeKeys[session.IdentityKey] = struct{}{}
	}

	t.joinUnknownParticipants(ctx, meetingUID, present, activeKeys, now)
	t.expireMissingSessions(ctx, meetingUID, active, present, tracker, now)
}

// joinUnknownParticipants synthesizes joins for identities the snapshot
// reports present but that have no active session.
func (t *TrackerService) joinUnknownParticipants(ctx context.Context, meetingUID string, present map[string]domain.PlatformParticipant, activeKeys map[string]struct{}, now time.Time) {
	for key, participant := range present {
		if _, ok := activeKeys[key]; ok {
			continue
		}

		id := models.Identity{
			Key:         key,
			DisplayName: participant.Name,
			Email:       participant.Email,
		}
		event := t.ingest.FromReconciler(meetingUID, id, models.EventTypeJoin, now)
		if _, _, err := t.engine.Apply(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to apply synthesized join",
				logging.ErrKey, err, "identity_key", key)
		}
	}
}

// expireMissingSessions synthesizes timeout leaves for active sessions the
// snapshot has not reported present for longer than the grace period.
func (t *TrackerService) expireMissingSessions(ctx context.Context, meetingUID string, active []*models.Session, present map[string]domain.PlatformParticipant, tracker *meetingTracker, now time.Time) {
	for _, session := range active {
		if _, ok := present[session.IdentityKey]; ok {
			continue
		}

		lastSeen, ok := tracker.lastSeen[session.IdentityKey]
		if !ok {
			// First miss for a session the poller never observed (joined
			// through another channel). Start the grace clock now.
			tracker.lastSeen[session.IdentityKey] = now
			continue
		}

		if now.Sub(lastSeen) < t.config.GracePeriod {
			continue
		}

		id := models.Identity{
			Key:         session.IdentityKey,
			DisplayName: session.DisplayName,
			Email:       session.Email,
		}
		event := t.ingest.FromReconciler(meetingUID, id, models.EventTypeLeave, lastSeen)
		if _, _, err := t.engine.Apply(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to apply synthesized leave",
				logging.ErrKey, err, "identity_key", session.IdentityKey)
			continue
		}
		delete(tracker.lastSeen, session.IdentityKey)
	}
}
