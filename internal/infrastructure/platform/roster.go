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

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/pkg/redaction"
)

// platformUser is the platform's user record, used for roster enrichment.
type platformUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RoleName  string `json:"role_name"`
}

// Ensure that Client implements the roster lookup interface.
var _ domain.RosterLookup = (*Client)(nil)

// FindByEmailOrID looks up a roster record by email address or platform
// user id. The lookup endpoint accepts either form of identifier.
func (c *Client) FindByEmailOrID(ctx context.Context, key string) (*models.RosterRecord, error) {
	if key == "" {
		return nil, domain.NewValidationError("lookup key is required")
	}

	ctx = logging.AppendCtx(ctx, slog.String("platform_operation", "roster_lookup"))

	resp, err := c.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(key), nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up roster record",
			logging.ErrKey, err, "key", redaction.RedactEmail(key))
		return nil, domain.NewUnavailableError("roster lookup failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError(
			fmt.Sprintf("no roster record for '%s'", redaction.RedactEmail(key)))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := parseErrorResponse(body)
		slog.ErrorContext(ctx, "platform API returned error",
			logging.ErrKey, err, "status", resp.StatusCode)
		return nil, domain.NewUnavailableError("roster lookup failed", err)
	}

	var user platformUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.ErrorContext(ctx, "failed to decode roster response", logging.ErrKey, err)
		return nil, domain.NewInternalError("failed to decode roster response", err)
	}

	return &models.RosterRecord{
		ID:    user.ID,
		Name:  strings.TrimSpace(user.FirstName + " " + user.LastName),
		Email: strings.ToLower(user.Email),
		Role:  user.RoleName,
	}, nil
}
