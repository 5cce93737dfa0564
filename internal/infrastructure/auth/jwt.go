// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

// Package auth validates identity tokens presented on self-reported
// check-in/check-out operations. Tokens are always cryptographically
// verified against the configured JWKS endpoint; there is no decode-only
// mode. The only escape hatch is the mock principal for local development.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

const (
	// defaultJWKSURL is the default JWKS endpoint for local development.
	defaultJWKSURL = "http://classtrack-auth.default.svc.cluster.local:4457/.well-known/jwks"
	// defaultAudience is the default JWT audience.
	defaultAudience = "attendance-service"

	jwksCacheTTL = 5 * time.Minute
)

// TokenClaims are the identity claims extracted from a validated token.
type TokenClaims struct {
	Subject string
	Name    string
	Email   string
	Role    string
}

// customClaims carries the non-registered claims we care about.
type customClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Validate implements validator.CustomClaims. The profile claims are all
// optional; the required subject is checked on the registered claims.
func (c *customClaims) Validate(_ context.Context) error {
	return nil
}

// JWTAuthConfig is the configuration for JWT authentication.
type JWTAuthConfig struct {
	JWKSURL  string
	Audience string
	// MockLocalPrincipal bypasses validation and returns this subject for
	// any token. Local development only; never set in production.
	MockLocalPrincipal string
}

// JWTAuth validates identity tokens and extracts their claims.
type JWTAuth struct {
	config    JWTAuthConfig
	validator *validator.Validator
}

// NewJWTAuth creates a new JWTAuth from the given configuration.
func NewJWTAuth(config JWTAuthConfig) (*JWTAuth, error) {
	if config.JWKSURL == "" {
		config.JWKSURL = defaultJWKSURL
	}
	if config.Audience == "" {
		config.Audience = defaultAudience
	}

	jwksURL, err := url.Parse(config.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("invalid JWKS URL %q: %w", config.JWKSURL, err)
	}

	issuerURL := &url.URL{Scheme: jwksURL.Scheme, Host: jwksURL.Host, Path: "/"}
	provider := jwks.NewCachingProvider(issuerURL, jwksCacheTTL, jwks.WithCustomJWKSURI(jwksURL))

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{config.Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &customClaims{}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up JWT validator: %w", err)
	}

	return &JWTAuth{
		config:    config,
		validator: jwtValidator,
	}, nil
}

// ParseClaims validates the given bearer token and returns its identity
// claims. A token without a subject is rejected.
func (a *JWTAuth) ParseClaims(ctx context.Context, token string) (*TokenClaims, error) {
	if a.config.MockLocalPrincipal != "" {
		slog.WarnContext(ctx, "JWT validation is disabled, returning mock principal",
			"principal", a.config.MockLocalPrincipal)
		return &TokenClaims{Subject: a.config.MockLocalPrincipal}, nil
	}

	if a.validator == nil {
		return nil, errors.New("JWT validator is not set up")
	}

	validated, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := validated.(*validator.ValidatedClaims)
	if !ok {
		return nil, errors.New("unexpected claims type from validator")
	}

	if claims.RegisteredClaims.Subject == "" {
		return nil, errors.New("token has no subject claim")
	}

	result := &TokenClaims{
		Subject: claims.RegisteredClaims.Subject,
	}
	if custom, ok := claims.CustomClaims.(*customClaims); ok && custom != nil {
		result.Name = custom.Name
		result.Email = custom.Email
		result.Role = custom.Role
	}

	return result, nil
}
