package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aigos/governor/pkg/apierr"
	"github.com/aigos/governor/pkg/ingestion"
)

// eventRequest is the wire shape of a single event submitted for ingest.
type eventRequest struct {
	SpecVersion   string                    `json:"spec_version"`
	SchemaVersion string                    `json:"schema_version"`
	Type          string                    `json:"type"`
	Category      string                    `json:"category"`
	Criticality   ingestion.Criticality     `json:"criticality"`
	Source        string                    `json:"source"`
	AssetID       string                    `json:"asset_id"`
	ProducedAt    time.Time                 `json:"produced_at"`
	GoldenThread  ingestion.GoldenThreadRef `json:"golden_thread"`
	Data          map[string]any            `json:"data"`
}

func (req eventRequest) toDraft(orgID string) ingestion.Draft {
	producedAt := req.ProducedAt
	if producedAt.IsZero() {
		producedAt = time.Now().UTC()
	}
	return ingestion.Draft{
		SpecVersion:   req.SpecVersion,
		SchemaVersion: req.SchemaVersion,
		Type:          req.Type,
		Category:      req.Category,
		Criticality:   req.Criticality,
		Source:        req.Source,
		OrgID:         orgID,
		AssetID:       req.AssetID,
		ProducedAt:    producedAt,
		GoldenThread:  req.GoldenThread,
		Data:          req.Data,
	}
}

type itemResponse struct {
	ID    string `json:"id,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func toItemResponse(r ingestion.AcceptResult) itemResponse {
	if r.Error != "" {
		id := ""
		if r.Event != nil {
			id = r.Event.ID
		}
		return itemResponse{ID: id, OK: false, Error: r.Error}
	}
	return itemResponse{ID: r.Event.ID, OK: true}
}

// handleEventsSync implements POST /v1/events (spec §6).
func (s *Server) handleEventsSync(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.WriteBadRequest(w, "EVT_BAD_REQUEST", "malformed JSON body")
		return
	}

	rl := s.pipeline.RateLimitCheck(ingestion.ChannelSync, orgID, req.Criticality)
	rateLimitHeaders(w, rl)
	if !rl.Allowed {
		apierr.WriteTooManyRequests(w, int(time.Until(rl.ResetAt).Seconds()))
		return
	}

	result := s.pipeline.Accept(r.Context(), req.toDraft(orgID))
	item := toItemResponse(result)

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if result.Error != "" {
		status = http.StatusBadRequest
		if result.Error == "EVT_INTERNAL" {
			status = http.StatusInternalServerError
		}
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": boolToInt(result.Error == ""),
		"rejected": boolToInt(result.Error != ""),
		"result":   item,
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// handleEventsBatch implements POST /v1/events/batch (spec §6).
func (s *Server) handleEventsBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var reqs []eventRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		apierr.WriteBadRequest(w, "EVT_BAD_REQUEST", "malformed JSON body")
		return
	}

	worstCriticality := ingestion.CriticalityNormal
	for _, req := range reqs {
		if req.Criticality == ingestion.CriticalityCritical {
			worstCriticality = ingestion.CriticalityCritical
			break
		}
	}
	rl := s.pipeline.RateLimitCheck(ingestion.ChannelBatch, orgID, worstCriticality)
	rateLimitHeaders(w, rl)
	if !rl.Allowed {
		apierr.WriteTooManyRequests(w, int(time.Until(rl.ResetAt).Seconds()))
		return
	}

	drafts := make([]ingestion.Draft, len(reqs))
	for i, req := range reqs {
		drafts[i] = req.toDraft(orgID)
	}

	results, ok := s.pipeline.AcceptBatch(r.Context(), drafts, s.maxBatchSize)
	if !ok {
		apierr.WriteBadRequest(w, "EVT_BATCH_TOO_LARGE", "batch exceeds configured maximum size")
		return
	}

	accepted, rejected := 0, 0
	items := make([]itemResponse, len(results))
	for i, res := range results {
		items[i] = toItemResponse(res)
		if res.Error == "" {
			accepted++
		} else {
			rejected++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": accepted,
		"rejected": rejected,
		"results":  items,
	})
}

// handleEventsList implements GET /v1/events (spec §6).
func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	f := filterFromQuery(r, orgID)

	events, err := s.store.ListEvents(r.Context(), f)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}
	writeEventList(w, events)
}

// handleEventByID implements GET /v1/events/:id (spec §6).
func (s *Server) handleEventByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if id == "" || id == "batch" {
		apierr.WriteNotFound(w, "EVT_NOT_FOUND", "")
		return
	}

	evt, err := s.store.FindByID(r.Context(), orgID, id)
	if err != nil {
		if err == ingestion.ErrNotFound {
			apierr.WriteNotFound(w, "EVT_NOT_FOUND", "")
			return
		}
		apierr.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

// handleAssets implements GET /v1/assets (spec §6).
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	summaries, err := s.store.ListAssets(r.Context(), orgID)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": summaries})
}

// handleAssetEvents implements GET /v1/assets/:assetId/events (spec §6).
func (s *Server) handleAssetEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.WriteMethodNotAllowed(w)
		return
	}
	orgID, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/assets/")
	assetID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "events" || assetID == "" {
		apierr.WriteNotFound(w, "EVT_NOT_FOUND", "")
		return
	}

	f := filterFromQuery(r, orgID)
	events, err := s.store.GetAssetEvents(r.Context(), orgID, assetID, f)
	if err != nil {
		apierr.WriteInternal(w, err)
		return
	}
	writeEventList(w, events)
}

func filterFromQuery(r *http.Request, orgID string) ingestion.Filter {
	q := r.URL.Query()
	f := ingestion.Filter{
		OrgID:       orgID,
		AssetID:     q.Get("asset_id"),
		Type:        q.Get("type"),
		Criticality: ingestion.Criticality(q.Get("criticality")),
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = offset
	}
	return f
}

func writeEventList(w http.ResponseWriter, events []*ingestion.GovernanceEvent) {
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
