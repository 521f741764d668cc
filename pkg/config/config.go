// Package config loads process configuration from the environment, per the
// bindings named in spec §6.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-bindable setting for the aigosd process.
type Config struct {
	// Service bind.
	Port     string
	LogLevel string

	// Signing / trust.
	SigningKeySecret string // raw key material or a reference to it (e.g. "env:FOO", "file:/path")
	SigningKeyID     string
	TrustedKeysFile  string // JSON file of {kid: {alg, public_key}} trusted for verification
	JWKSURL          string

	// A2A token defaults.
	Issuer          string
	DefaultAudience string
	TokenTTL        time.Duration

	// Ingestion.
	DatabaseURL      string
	RateLimitPerMin  int
	RateLimitWindow  time.Duration
	MaxBatchSize     int
	ReplayCacheSize  int
	MerkleWindowSize int           // leaves per checkpoint window
	MerkleWindowTime time.Duration // max window age before forced seal
	CriticalExempt   bool

	// Cold storage export of sealed checkpoints. Backend is "" (disabled),
	// "s3" or "gcs".
	ColdStorageBackend  string
	ColdStorageBucket   string
	ColdStorageRegion   string
	ColdStorageEndpoint string
	ColdStoragePrefix   string

	// Kill-switch.
	ClockSkewTolerance     time.Duration
	HeartbeatTimeout       time.Duration
	ReconnectInitialDelay  time.Duration
	ReconnectMaxDelay      time.Duration
	MaxParallelTerminate   int
	TerminationTimeout     time.Duration
	MaxReconnectAttempts   int // 0 = infinite

	ShadowMode bool // dry-run: policy denials never block, only recorded

	// Distributed rate limiting. Empty RedisAddr keeps the in-process limiter.
	RedisAddr string

	// Metrics export.
	OTelEnabled  bool
	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

// Load loads configuration from environment variables, falling back to safe
// development defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),

		SigningKeySecret: getEnv("AIGOS_SIGNING_KEY", ""),
		SigningKeyID:     getEnv("AIGOS_SIGNING_KID", "default"),
		TrustedKeysFile:  getEnv("AIGOS_TRUSTED_KEYS_FILE", ""),
		JWKSURL:          getEnv("AIGOS_JWKS_URL", ""),

		Issuer:          getEnv("AIGOS_ISSUER", "aigos-governor"),
		DefaultAudience: getEnv("AIGOS_DEFAULT_AUDIENCE", "aigos.internal"),
		TokenTTL:        getEnvDuration("AIGOS_TOKEN_TTL", 300*time.Second),

		DatabaseURL:      getEnv("DATABASE_URL", "postgres://aigos@localhost:5432/aigos?sslmode=disable"),
		RateLimitPerMin:  getEnvInt("AIGOS_RATE_LIMIT_PER_MIN", 600),
		RateLimitWindow:  getEnvDuration("AIGOS_RATE_LIMIT_WINDOW", time.Minute),
		MaxBatchSize:     getEnvInt("AIGOS_MAX_BATCH_SIZE", 1000),
		ReplayCacheSize:  getEnvInt("AIGOS_REPLAY_CACHE_SIZE", 100_000),
		MerkleWindowSize: getEnvInt("AIGOS_MERKLE_WINDOW_SIZE", 1000),
		MerkleWindowTime: getEnvDuration("AIGOS_MERKLE_WINDOW_TIME", 5*time.Minute),
		CriticalExempt:   getEnvBool("AIGOS_CRITICAL_EXEMPT", true),

		ColdStorageBackend:  getEnv("AIGOS_COLD_STORAGE_BACKEND", ""),
		ColdStorageBucket:   getEnv("AIGOS_COLD_STORAGE_BUCKET", ""),
		ColdStorageRegion:   getEnv("AIGOS_COLD_STORAGE_REGION", "us-east-1"),
		ColdStorageEndpoint: getEnv("AIGOS_COLD_STORAGE_ENDPOINT", ""),
		ColdStoragePrefix:   getEnv("AIGOS_COLD_STORAGE_PREFIX", "checkpoints/"),

		ClockSkewTolerance:    getEnvDuration("AIGOS_CLOCK_SKEW", 60*time.Second),
		HeartbeatTimeout:      getEnvDuration("AIGOS_HEARTBEAT_TIMEOUT", 30*time.Second),
		ReconnectInitialDelay: getEnvDuration("AIGOS_RECONNECT_INITIAL_DELAY", 500*time.Millisecond),
		ReconnectMaxDelay:     getEnvDuration("AIGOS_RECONNECT_MAX_DELAY", 30*time.Second),
		MaxParallelTerminate:  getEnvInt("AIGOS_MAX_PARALLEL_TERMINATE", 10),
		TerminationTimeout:    getEnvDuration("AIGOS_TERMINATION_TIMEOUT", 30*time.Second),
		MaxReconnectAttempts:  getEnvInt("AIGOS_MAX_RECONNECT_ATTEMPTS", 0),

		ShadowMode: getEnvBool("SHADOW_MODE", false),

		RedisAddr: getEnv("AIGOS_REDIS_ADDR", ""),

		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName:  getEnv("AIGOS_SERVICE_NAME", "aigos-governor"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
