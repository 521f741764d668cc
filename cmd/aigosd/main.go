// Command aigosd runs the governor daemon: the event ingestion surface
// (pkg/ingestion) plus a lightweight agent-to-agent token validation
// endpoint (pkg/a2a), wired from process environment per pkg/config.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/redis/go-redis/v9"

	"github.com/aigos/governor/pkg/a2a"
	"github.com/aigos/governor/pkg/apierr"
	"github.com/aigos/governor/pkg/config"
	"github.com/aigos/governor/pkg/ingestion"
	"github.com/aigos/governor/pkg/ingestion/httpapi"
	"github.com/aigos/governor/pkg/telemetry"
)

// version is stamped by build tooling; "dev" when run from source.
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the command dispatcher, mirroring the teacher's
// args[1]-switch-with-server-default shape.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		runServer(stdout, stderr)
		return 0
	}

	switch args[1] {
	case "server", "serve":
		runServer(stdout, stderr)
		return 0
	case "health":
		return runHealthCmd(stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "aigosd %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			runServer(stdout, stderr)
			return 0
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: aigosd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server    Run the governor daemon (default)")
	fmt.Fprintln(w, "  health    Check daemon health over HTTP")
	fmt.Fprintln(w, "  version   Show version information")
	fmt.Fprintln(w, "  help      Show this help")
}

func runHealthCmd(out, errOut io.Writer) int {
	resp, err := http.Get("http://localhost:8080/v1/health")
	if err != nil {
		fmt.Fprintf(errOut, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func runServer(stdout, stderr io.Writer) {
	fmt.Fprintln(stdout, "aigosd starting...")
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := context.Background()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open event store", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.New(ctx, telemetry.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTelEnabled,
		Insecure:     cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}

	limiter := newLimiter(cfg, logger)
	pipeline := ingestion.NewPipeline(store, limiter, ingestion.NewSchemaRegistry(), nil, cfg.CriticalExempt).
		WithMetrics(metrics).
		WithTracer(metrics)

	auth := newAuthenticator()
	ingestServer := httpapi.NewServer(pipeline, store, auth, httpapi.Config{MaxBatchSize: cfg.MaxBatchSize})

	tokenManager, err := newTokenManager(cfg)
	if err != nil {
		logger.Error("failed to init a2a token manager", "error", err)
		os.Exit(1)
	}

	mux := ingestServer.Mux()
	mux.HandleFunc("/v1/a2a/validate", handleA2AValidate(tokenManager, cfg))

	exporter, err := newColdStorageExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init cold storage exporter", "error", err)
		os.Exit(1)
	}
	sealer := ingestion.Sealer{MaxWindow: cfg.MerkleWindowTime, MaxLeaves: cfg.MerkleWindowSize}
	sealLoop := ingestion.NewSealLoop(pipeline, sealer, cfg.MerkleWindowTime, exporter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("aigosd listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sealLoop.Run(sigCtx)

	<-sigCtx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown failed", "error", err)
	}
}

// newLimiter picks the rate limiter backend: a RedisRateLimiter when
// cfg.RedisAddr is set, sharing counters across every aigosd instance,
// otherwise the in-process RateLimiter.
func newLimiter(cfg *config.Config, logger *slog.Logger) ingestion.Limiter {
	if cfg.RedisAddr == "" {
		return ingestion.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitWindow, nil)
	}
	logger.Info("rate limiter: redis", "addr", cfg.RedisAddr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return ingestion.NewRedisRateLimiter(rdb, cfg.RateLimitPerMin, cfg.RateLimitWindow)
}

// newColdStorageExporter picks the cold-storage backend from
// cfg.ColdStorageBackend. An empty backend disables checkpoint export
// (exporter is nil, which SealLoop treats as a no-op).
func newColdStorageExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ingestion.ColdStorageExporter, error) {
	switch cfg.ColdStorageBackend {
	case "":
		return nil, nil
	case "s3":
		logger.Info("cold storage: s3", "bucket", cfg.ColdStorageBucket)
		return ingestion.NewS3ColdStorage(ctx, ingestion.S3ColdStorageConfig{
			Bucket:   cfg.ColdStorageBucket,
			Region:   cfg.ColdStorageRegion,
			Endpoint: cfg.ColdStorageEndpoint,
			Prefix:   cfg.ColdStoragePrefix,
		})
	case "gcs":
		logger.Info("cold storage: gcs", "bucket", cfg.ColdStorageBucket)
		return ingestion.NewGCSColdStorage(ctx, ingestion.GCSColdStorageConfig{
			Bucket: cfg.ColdStorageBucket,
			Prefix: cfg.ColdStoragePrefix,
		})
	default:
		return nil, fmt.Errorf("unknown cold storage backend %q", cfg.ColdStorageBackend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("component", "aigosd")
}

// openStore picks the event store backend from cfg.DatabaseURL: a
// "postgres://" URL opens PGStore; anything else (including unset, which
// falls back to a local file) opens SQLiteStore, mirroring the teacher's
// DATABASE_URL-unset-falls-back-to-lite-mode convention.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ingestion.Store, error) {
	if strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := ingestion.NewPGStore(db)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		logger.Info("event store: postgres")
		return store, nil
	}

	path := strings.TrimPrefix(cfg.DatabaseURL, "sqlite://")
	if path == "" || path == cfg.DatabaseURL {
		path = "aigos.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := ingestion.NewSQLiteStore(db)
	if err != nil {
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	logger.Info("event store: sqlite", "path", path)
	return store, nil
}

func newTokenManager(cfg *config.Config) (*a2a.Manager, error) {
	keys, err := a2a.NewInMemoryKeySet(a2a.AlgEd25519)
	if err != nil {
		return nil, err
	}
	return a2a.NewManager(keys, cfg.Issuer, cfg.ClockSkewTolerance), nil
}

// staticTokensFromEnv parses AIGOS_STATIC_TOKENS as a comma-separated
// "token:orgId" list for the bearer authenticator.
func staticTokensFromEnv() map[string]string {
	tokens := map[string]string{}
	raw := os.Getenv("AIGOS_STATIC_TOKENS")
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, orgID, ok := strings.Cut(pair, ":")
		if !ok || token == "" || orgID == "" {
			continue
		}
		tokens[token] = orgID
	}
	return tokens
}

// newAuthenticator builds the bearer authenticator from whichever
// credential form the operator configured: AIGOS_HASHED_TOKENS (bcrypt
// hash:orgId pairs, for credentials that shouldn't sit in memory as
// plaintext) takes precedence over AIGOS_STATIC_TOKENS.
func newAuthenticator() httpapi.Authenticator {
	raw := os.Getenv("AIGOS_HASHED_TOKENS")
	if raw == "" {
		return httpapi.NewStaticTokenAuthenticator(staticTokensFromEnv())
	}
	auth := httpapi.NewHashedTokenAuthenticator()
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		hash, orgID, ok := strings.Cut(pair, ":")
		if !ok || hash == "" || orgID == "" {
			continue
		}
		auth.AddHash(hash, orgID)
	}
	return auth
}

func handleA2AValidate(manager *a2a.Manager, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			apierr.WriteMethodNotAllowed(w)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			apierr.WriteBadRequest(w, "A2A_BAD_REQUEST", "token query parameter is required")
			return
		}
		audience := r.URL.Query().Get("audience")
		if audience == "" {
			audience = cfg.DefaultAudience
		}

		result := manager.Validate(token, cfg.Issuer, audience)
		status := http.StatusOK
		if !result.Valid {
			status = http.StatusUnauthorized
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
	}
}
