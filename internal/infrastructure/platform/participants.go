// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/logging"
)

// liveParticipant is one participant entry in the live-meeting dashboard
// response.
type liveParticipant struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	JoinTime  string `json:"join_time"`
	LeaveTime string `json:"leave_time"`
}

// liveParticipantsResponse is the paged dashboard response for a live meeting.
type liveParticipantsResponse struct {
	PageCount     int               `json:"page_count"`
	PageSize      int               `json:"page_size"`
	TotalRecords  int               `json:"total_records"`
	NextPageToken string            `json:"next_page_token"`
	Participants  []liveParticipant `json:"participants"`
}

type snapshotEntry struct {
	participants []domain.PlatformParticipant
	fetchedAt    time.Time
}

// Ensure that Client implements the pull channel interface.
var _ domain.PlatformClient = (*Client)(nil)

// ListCurrentParticipants fetches the authoritative set of participants
// currently present in a meeting. Responses are cached for a short TTL so
// overlapping readers do not re-hit the platform API.
func (c *Client) ListCurrentParticipants(ctx context.Context, meetingUID string) ([]domain.PlatformParticipant, error) {
	if meetingUID == "" {
		return nil, domain.NewValidationError("meeting UID is required")
	}

	if cached, ok := c.cachedSnapshot(meetingUID); ok {
		c.counters.SnapshotCacheHit()
		return cached, nil
	}
	c.counters.SnapshotCacheMiss()

	ctx = logging.AppendCtx(ctx, slog.String("platform_operation", "list_participants"))

	participants, err := c.fetchParticipants(ctx, meetingUID)
	if err != nil {
		return nil, err
	}

	c.storeSnapshot(meetingUID, participants)

	slog.DebugContext(ctx, "retrieved live participants",
		"meeting_uid", meetingUID,
		"participant_count", len(participants),
	)

	return participants, nil
}

func (c *Client) fetchParticipants(ctx context.Context, meetingUID string) ([]domain.PlatformParticipant, error) {
	var participants []domain.PlatformParticipant
	pageToken := ""

	for {
		path := fmt.Sprintf("/metrics/meetings/%s/participants?type=live&page_size=100", url.PathEscape(meetingUID))
		if pageToken != "" {
			path += "&next_page_token=" + url.QueryEscape(pageToken)
		}

		resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			slog.ErrorContext(ctx, "failed to list live participants", logging.ErrKey, err, "meeting_uid", meetingUID)
			return nil, domain.NewUnavailableError("platform participant snapshot failed", err)
		}

		page, err := c.decodeParticipantsPage(ctx, resp, meetingUID)
		if err != nil {
			return nil, err
		}

		for _, p := range page.Participants {
			// The dashboard keeps departed participants in the live listing
			// with their leave_time populated; only entries still present
			// count toward the snapshot.
			if p.LeaveTime != "" {
				continue
			}
			participants = append(participants, domain.PlatformParticipant{
				IdentityKey: participantIdentityKey(p),
				Name:        p.UserName,
				Email:       strings.ToLower(p.Email),
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return participants, nil
}

func (c *Client) decodeParticipantsPage(ctx context.Context, resp *http.Response, meetingUID string) (*liveParticipantsResponse, error) {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError(fmt.Sprintf("meeting '%s' not found on platform", meetingUID))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := parseErrorResponse(body)
		slog.ErrorContext(ctx, "platform API returned error",
			logging.ErrKey, err, "status", resp.StatusCode, "meeting_uid", meetingUID)
		return nil, domain.NewUnavailableError("platform participant snapshot failed", err)
	}

	var page liveParticipantsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		slog.ErrorContext(ctx, "failed to decode participants response", logging.ErrKey, err)
		return nil, domain.NewInternalError("failed to decode participants response", err)
	}

	return &page, nil
}

// participantIdentityKey mirrors the identity resolver's key derivation:
// stable platform user id first, lowercased email as fallback, display name
// as a last resort for unauthenticated guests.
func participantIdentityKey(p liveParticipant) string {
	if p.UserID != "" {
		return p.UserID
	}
	if p.ID != "" {
		return p.ID
	}
	if p.Email != "" {
		return strings.ToLower(p.Email)
	}
	return p.UserName
}

func (c *Client) cachedSnapshot(meetingUID string) ([]domain.PlatformParticipant, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	entry, ok := c.cache[meetingUID]
	if !ok || time.Since(entry.fetchedAt) > c.config.SnapshotTTL {
		return nil, false
	}
	return entry.participants, true
}

func (c *Client) storeSnapshot(meetingUID string, participants []domain.PlatformParticipant) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache[meetingUID] = snapshotEntry{
		participants: participants,
		fetchedAt:    time.Now(),
	}
}

// InvalidateSnapshot drops the cached participant snapshot for a meeting.
// Called when the meeting ends so stale presence cannot be served.
func (c *Client) InvalidateSnapshot(meetingUID string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	delete(c.cache, meetingUID)
}
