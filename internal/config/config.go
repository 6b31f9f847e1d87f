// Package config provides environment-variable configuration helpers for
// wavemind commands. Flags win over env vars; env vars win over defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/coordinator"
)

// Defaults for the daemon.
const (
	DefaultPort        = "8600"
	DefaultDBPath      = "wavemind.db"
	DefaultProfilesDir = "profiles"
)

// String returns the value of an env var, or fallback when unset.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Duration parses an env var as a time.Duration, or fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Float parses an env var as a float64, or fallback.
func Float(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Settings builds the shared evaluation settings from the environment,
// starting from coordinator defaults. The caller still validates.
func Settings() coordinator.Settings {
	s := coordinator.DefaultSettings()
	s.SampleInterval = Duration("WAVEMIND_SAMPLE_INTERVAL", s.SampleInterval)
	s.SmoothingHalfLife = Duration("WAVEMIND_SMOOTHING_HALF_LIFE", s.SmoothingHalfLife)
	s.SuccessThreshold = Float("WAVEMIND_SUCCESS_THRESHOLD", s.SuccessThreshold)
	s.OverloadThreshold = Float("WAVEMIND_OVERLOAD_THRESHOLD", s.OverloadThreshold)
	s.InstabilityFailThreshold = Float("WAVEMIND_FAIL_THRESHOLD", s.InstabilityFailThreshold)
	s.InstabilityRecoveryRate = Float("WAVEMIND_RECOVERY_RATE", s.InstabilityRecoveryRate)
	return s
}
