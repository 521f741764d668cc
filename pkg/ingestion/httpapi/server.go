// Package httpapi exposes the event ingestion pipeline over the HTTP
// surface pinned in spec §6, built on net/http.ServeMux and the shared
// pkg/apierr RFC 7807 helpers — no third-party HTTP framework, matching
// the teacher's pkg/console server (plain mux.HandleFunc routing).
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aigos/governor/pkg/apierr"
	"github.com/aigos/governor/pkg/ingestion"
)

// Authenticator resolves the bearer credential on a request to an
// authenticated orgId, per spec §4.6's "callers present a bearer
// credential that resolves to an orgId".
type Authenticator interface {
	Authenticate(r *http.Request) (orgID string, ok bool)
}

// Server wires a Pipeline and Store to the HTTP surface.
type Server struct {
	pipeline     *ingestion.Pipeline
	store        ingestion.Store
	auth         Authenticator
	maxBatchSize int
	logger       *slog.Logger
}

// Config configures a Server.
type Config struct {
	MaxBatchSize int
}

// NewServer constructs a Server.
func NewServer(pipeline *ingestion.Pipeline, store ingestion.Store, auth Authenticator, cfg Config) *Server {
	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &Server{
		pipeline:     pipeline,
		store:        store,
		auth:         auth,
		maxBatchSize: maxBatch,
		logger:       slog.Default().With("component", "ingestion.httpapi"),
	}
}

// Mux builds the routed *http.ServeMux for the event ingestion surface
// named in spec §6.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/events", s.handleEventsRouter)
	mux.HandleFunc("/v1/events/batch", s.handleEventsBatch)
	mux.HandleFunc("/v1/events/", s.handleEventByID)
	mux.HandleFunc("/v1/assets", s.handleAssets)
	mux.HandleFunc("/v1/assets/", s.handleAssetEvents)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleEventsRouter dispatches POST (sync ingest) and GET (list) on
// /v1/events, since the teacher's router style dispatches by method
// within one HandleFunc rather than registering per-verb.
func (s *Server) handleEventsRouter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEventsSync(w, r)
	case http.MethodGet:
		s.handleEventsList(w, r)
	default:
		apierr.WriteMethodNotAllowed(w)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := s.auth.Authenticate(r)
	if !ok {
		apierr.WriteUnauthorized(w, "EVT_UNAUTHORIZED", "")
		return "", false
	}
	return orgID, true
}

func rateLimitHeaders(w http.ResponseWriter, res ingestion.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
