package config_test

import (
	"testing"
	"time"

	"github.com/aigos/governor/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: System must boot with safe defaults in dev mode.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "SHADOW_MODE",
		"AIGOS_RATE_LIMIT_PER_MIN", "AIGOS_TOKEN_TTL",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.False(t, cfg.ShadowMode)
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, 600, cfg.RateLimitPerMin)
	assert.Equal(t, 1000, cfg.MaxBatchSize)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: Ops can control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("SHADOW_MODE", "true")
	t.Setenv("AIGOS_TOKEN_TTL", "90s")
	t.Setenv("AIGOS_MAX_BATCH_SIZE", "50")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.True(t, cfg.ShadowMode)
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.Equal(t, 50, cfg.MaxBatchSize)
}
