// Copyright The ClassTrack Authors.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/classtrack/attendance-service/internal/logging"
	"github.com/classtrack/attendance-service/internal/service"
	"github.com/classtrack/attendance-service/pkg/constants"
)

// flags are the command line flags for the attendance service.
type flags struct {
	Debug bool
	Port  string
	Bind  string
}

// environment are the environment variables for the attendance service.
type environment struct {
	Port                string
	NatsURL             string
	Platform            platformConfig
	PollingInterval     time.Duration
	PollingGracePeriod  time.Duration
	AttendanceThreshold int
	RejoinPolicy        service.RejoinPolicy
}

// platformConfig holds the meeting-platform API credentials. The pull
// channel is disabled when the credentials are not set.
type platformConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
}

// Enabled reports whether the pull channel can be used.
func (c platformConfig) Enabled() bool {
	return c.AccountID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// parseFlags parses command line flags for the attendance service
func parseFlags(defaultPort string) flags {
	var debug = flag.Bool("d", false, "enable debug logging")
	var port = flag.String("p", defaultPort, "listen port")
	var bind = flag.String("bind", "*", "interface to bind on")

	flag.Usage = func() {
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	// Based on the debug flag, set the log level environment variable used by [logging.InitStructureLogConfig]
	if *debug {
		err := os.Setenv("LOG_LEVEL", "debug")
		if err != nil {
			slog.With(logging.ErrKey, err).Error("error setting log level")
			os.Exit(1)
		}
	}

	return flags{
		Debug: *debug,
		Port:  *port,
		Bind:  *bind,
	}
}

// parseEnv parses environment variables for the attendance service
func parseEnv() environment {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	rejoinPolicy := service.RejoinPolicy(os.Getenv("REJOIN_POLICY"))
	switch rejoinPolicy {
	case service.RejoinPolicyReset, service.RejoinPolicyAccumulate:
	case "":
		rejoinPolicy = service.RejoinPolicyReset
	default:
		slog.With("rejoin_policy", string(rejoinPolicy)).Error("invalid REJOIN_POLICY, expected 'reset' or 'accumulate'")
		os.Exit(1)
	}

	return environment{
		Port:                port,
		NatsURL:             natsURL,
		Platform:            parsePlatformConfig(),
		PollingInterval:     parseDurationEnv("POLLING_INTERVAL", constants.DefaultPollingInterval),
		PollingGracePeriod:  parseDurationEnv("POLLING_GRACE_PERIOD", constants.DefaultPollingGracePeriod),
		AttendanceThreshold: parseIntEnv("ATTENDANCE_THRESHOLD", constants.DefaultAttendanceThreshold),
		RejoinPolicy:        rejoinPolicy,
	}
}

// parsePlatformConfig parses the meeting-platform API configuration from
// environment variables.
func parsePlatformConfig() platformConfig {
	config := platformConfig{
		AccountID:    os.Getenv("PLATFORM_ACCOUNT_ID"),
		ClientID:     os.Getenv("PLATFORM_CLIENT_ID"),
		ClientSecret: os.Getenv("PLATFORM_CLIENT_SECRET"),
		BaseURL:      os.Getenv("PLATFORM_API_BASE_URL"),
		AuthURL:      os.Getenv("PLATFORM_AUTH_URL"),
	}

	if !config.Enabled() {
		slog.Warn("platform API credentials not set, polling reconciliation is disabled")
	}

	return config
}

func parseDurationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		slog.With(logging.ErrKey, err, "name", name, "value", raw).Error("invalid duration environment variable")
		os.Exit(1)
	}
	return value
}

func parseIntEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 || value > 100 {
		slog.With(logging.ErrKey, err, "name", name, "value", raw).Error("invalid integer environment variable")
		os.Exit(1)
	}
	return value
}
