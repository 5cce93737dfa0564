// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package identity normalizes participant identities from the different
// credential shapes the service accepts: validated identity tokens and
// push-event participant payloads.
package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/classtrack/attendance-service/internal/domain"
	"github.com/classtrack/attendance-service/internal/domain/models"
	"github.com/classtrack/attendance-service/internal/infrastructure/auth"
	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/pkg/redaction"
	"github.com/classtrack/attendance-service/pkg/utils"
)

// PlaceholderDisplayName is used when a push payload carries no usable name.
const PlaceholderDisplayName = "Guest"

// TokenVerifier validates an identity token and extracts its claims.
// Implemented by [auth.JWTAuth].
type TokenVerifier interface {
	ParseClaims(ctx context.Context, token string) (*auth.TokenClaims, error)
}

// Credential is either a bearer token or a push-event participant payload.
// Exactly one of the two should be set.
type Credential struct {
	// Token is a bearer identity token from an authenticated self-report.
	Token string
	// Participant is a push-event participant payload.
	Participant *models.WebhookParticipant
}

// Resolver resolves credentials into normalized identities, enriching them
// with a best-effort roster lookup.
type Resolver struct {
	Verifier TokenVerifier
	Roster   domain.RosterLookup
}

// NewResolver creates a new identity resolver. The roster lookup is optional;
// without it identities are returned unmatched.
func NewResolver(verifier TokenVerifier, roster domain.RosterLookup) *Resolver {
	return &Resolver{
		Verifier: verifier,
		Roster:   roster,
	}
}

// Resolve normalizes the given credential into an identity. Token
// credentials fail with a validation error when the token cannot be parsed
// into at least a subject. Push payloads never fail on missing profile
// fields: a missing name falls back to a placeholder.
func (r *Resolver) Resolve(ctx context.Context, credential Credential) (*models.Identity, error) {
	switch {
	case credential.Token != "":
		return r.resolveToken(ctx, credential.Token)
	case credential.Participant != nil:
		return r.resolveParticipant(ctx, credential.Participant), nil
	default:
		return nil, domain.NewValidationError("credential has neither token nor participant payload")
	}
}

func (r *Resolver) resolveToken(ctx context.Context, token string) (*models.Identity, error) {
	if r.Verifier == nil {
		return nil, domain.NewUnavailableError("token verifier is not configured")
	}

	claims, err := r.Verifier.ParseClaims(ctx, token)
	if err != nil {
		slog.WarnContext(ctx, "identity token rejected", logging.ErrKey, err)
		return nil, domain.NewValidationError("invalid credential", err)
	}

	id := &models.Identity{
		Key:         claims.Subject,
		DisplayName: utils.CoalesceString(cleanDisplayName(claims.Name), claims.Subject),
		Email:       claims.Email,
		Role:        claims.Role,
	}

	r.enrichFromRoster(ctx, id)
	return id, nil
}

func (r *Resolver) resolveParticipant(ctx context.Context, participant *models.WebhookParticipant) *models.Identity {
	// Platform user id is the stable key; fall back to email for guests that
	// have no platform account.
	key := utils.CoalesceString(participant.UserID, strings.ToLower(participant.Email))

	id := &models.Identity{
		Key:         key,
		DisplayName: utils.CoalesceString(cleanDisplayName(participant.UserName), PlaceholderDisplayName),
		Email:       participant.Email,
		Role:        participant.Role,
	}

	r.enrichFromRoster(ctx, id)
	return id
}

// enrichFromRoster attempts a roster lookup by email first, then by the
// identity key. Failures are logged and left non-fatal.
func (r *Resolver) enrichFromRoster(ctx context.Context, id *models.Identity) {
	if r.Roster == nil || id == nil {
		return
	}

	for _, key := range []string{id.Email, id.Key} {
		if key == "" {
			continue
		}

		record, err := r.Roster.FindByEmailOrID(ctx, key)
		if err != nil {
			if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
				slog.WarnContext(ctx, "roster lookup failed, continuing without match",
					logging.ErrKey, err,
					"lookup_key", redaction.RedactEmail(key))
			}
			continue
		}

		id.MatchedRoster = record
		if id.Role == "" {
			id.Role = record.Role
		}
		slog.DebugContext(ctx, "matched identity to roster record",
			"roster_id", record.ID,
			"email", redaction.RedactEmail(id.Email))
		return
	}
}

// cleanDisplayName removes organization information in parentheses from
// platform display names, e.g. "Jane Doe (Example Corp)" becomes "Jane Doe".
func cleanDisplayName(name string) string {
	if name == "" {
		return ""
	}

	if idx := strings.Index(name, "("); idx != -1 {
		name = name[:idx]
	}

	return strings.TrimSpace(name)
}
