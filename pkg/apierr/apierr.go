// Package apierr writes RFC 7807 Problem Detail error responses for the
// governor's HTTP surface.
package apierr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response carrying a
// machine-readable code alongside the human-readable detail, per spec §7's
// "every user-visible failure carries a machine-readable code".
func WriteError(w http.ResponseWriter, status int, title, code, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://aigos.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Code:   code,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteErrorR is WriteError enriched with request context (instance path,
// trace id from X-AIGOS-Request-ID).
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, code, detail string) {
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://aigos.dev/errors/%d", status),
		Title:    title,
		Status:   status,
		Code:     code,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  r.Header.Get("X-AIGOS-Request-ID"),
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func WriteBadRequest(w http.ResponseWriter, code, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", code, detail)
}

func WriteUnauthorized(w http.ResponseWriter, code, detail string) {
	if detail == "" {
		detail = "authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", code, detail)
}

func WriteForbidden(w http.ResponseWriter, code, detail string) {
	if detail == "" {
		detail = "insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", code, detail)
}

// WriteNotFound writes a 404. Cross-org lookups use this rather than 403,
// per spec §4.6's "cross-org reads return NOT_FOUND, never 403".
func WriteNotFound(w http.ResponseWriter, code, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", code, detail)
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "METHOD_NOT_ALLOWED", "the HTTP method is not supported for this endpoint")
}

func WriteConflict(w http.ResponseWriter, code, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", code, detail)
}

// WriteTooManyRequests writes the rate-limit-exhaustion response shape
// pinned by spec §6: 429 with Retry-After and
// {"error":"rate_limit_exceeded","retryAfter":<s>}.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      "rate_limit_exceeded",
		"retryAfter": retryAfterSecs,
	})
}

// WriteInternal writes a 500. err is logged but never exposed to the
// client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "EVT_INTERNAL", "an unexpected error occurred")
}
