package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
	"github.com/aigos/governor/pkg/ingestion/httpapi"
)

func newTestServer(limit int) (*httpapi.Server, *ingestion.MemStore) {
	store := ingestion.NewMemStore()
	limiter := ingestion.NewRateLimiter(limit, time.Minute, nil)
	pipeline := ingestion.NewPipeline(store, limiter, nil, nil, true)
	auth := httpapi.NewStaticTokenAuthenticator(map[string]string{
		"org-1-token": "org-1",
		"org-2-token": "org-2",
	})
	return httpapi.NewServer(pipeline, store, auth, httpapi.Config{MaxBatchSize: 5}), store
}

func doRequest(mux http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(10)
	rec := doRequest(s.Mux(), http.MethodGet, "/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostEvent_Unauthorized(t *testing.T) {
	s, _ := newTestServer(10)
	rec := doRequest(s.Mux(), http.MethodPost, "/v1/events", "", map[string]any{"type": "t"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostEvent_Accepted(t *testing.T) {
	s, _ := newTestServer(10)
	rec := doRequest(s.Mux(), http.MethodPost, "/v1/events", "org-1-token", map[string]any{
		"type":     "agent.spawned",
		"asset_id": "asset-1",
		"data":     map[string]any{"k": "v"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["accepted"])
}

func TestPostEvent_RateLimited(t *testing.T) {
	s, _ := newTestServer(1)
	payload := map[string]any{"type": "t", "asset_id": "asset-1"}
	first := doRequest(s.Mux(), http.MethodPost, "/v1/events", "org-1-token", payload)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(s.Mux(), http.MethodPost, "/v1/events", "org-1-token", payload)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])
}

func TestGetEventByID_CrossOrgNotFound(t *testing.T) {
	s, _ := newTestServer(10)
	post := doRequest(s.Mux(), http.MethodPost, "/v1/events", "org-1-token", map[string]any{
		"type": "t", "asset_id": "asset-1",
	})
	require.Equal(t, http.StatusOK, post.Code)
	var posted map[string]any
	require.NoError(t, json.Unmarshal(post.Body.Bytes(), &posted))
	id := posted["result"].(map[string]any)["id"].(string)

	// Same org can read it back.
	own := doRequest(s.Mux(), http.MethodGet, "/v1/events/"+id, "org-1-token", nil)
	assert.Equal(t, http.StatusOK, own.Code)

	// A different org gets NOT_FOUND, never forbidden, to avoid org enumeration.
	other := doRequest(s.Mux(), http.MethodGet, "/v1/events/"+id, "org-2-token", nil)
	assert.Equal(t, http.StatusNotFound, other.Code)
}

func TestBatchEvents_ThreeValidEventsAccepted(t *testing.T) {
	s, store := newTestServer(10)
	batch := []map[string]any{
		{"type": "a", "asset_id": "asset-1"},
		{"type": "b", "asset_id": "asset-1"},
		{"type": "c", "asset_id": "asset-1"},
	}
	rec := doRequest(s.Mux(), http.MethodPost, "/v1/events/batch", "org-1-token", batch)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["accepted"])

	events, err := store.ListEvents(context.Background(), ingestion.Filter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestBatchEvents_OversizeRejectedWholesale(t *testing.T) {
	s, _ := newTestServer(10)
	batch := make([]map[string]any, 6)
	for i := range batch {
		batch[i] = map[string]any{"type": "t", "asset_id": "asset-1"}
	}
	rec := doRequest(s.Mux(), http.MethodPost, "/v1/events/batch", "org-1-token", batch)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAssets(t *testing.T) {
	s, _ := newTestServer(10)
	doRequest(s.Mux(), http.MethodPost, "/v1/events", "org-1-token", map[string]any{"type": "t", "asset_id": "asset-1"})

	rec := doRequest(s.Mux(), http.MethodGet, "/v1/assets", "org-1-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assets := body["assets"].([]any)
	assert.Len(t, assets, 1)
}
