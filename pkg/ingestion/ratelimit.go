package ingestion

import (
	"sync"
	"time"
)

// RateLimiter implements the fixed-window limiter spec §9 codifies
// ("the source is fixed-window with reset; this spec codifies
// fixed-window"), keyed per (channel, orgId) per spec §4.6. Grounded on the
// teacher's pkg/api/middleware.go per-key visitor map, generalized from a
// token-bucket (golang.org/x/time/rate) per-IP limiter to a fixed-window
// counter keyed by an arbitrary string, since the spec pins reset-at-window
// boundary semantics rather than continuous refill.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	interval time.Duration
	now      func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter constructs a fixed-window limiter allowing limit calls per
// interval per key.
func NewRateLimiter(limit int, interval time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		windows:  make(map[string]*window),
		limit:    limit,
		interval: interval,
		now:      now,
	}
}

// Result describes the outcome of a rate-limit check along with the
// X-RateLimit-* header values spec §4.6 requires on every response.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allow checks and, if allowed, consumes one slot from key's current
// window. The (limit+1)-th call within a window is rejected; once interval
// has elapsed since the window started, a new window begins and the call
// succeeds, per spec §8's boundary-behavior note.
func (rl *RateLimiter) Allow(key string) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) >= rl.interval {
		w = &window{start: now, count: 0}
		rl.windows[key] = w
	}

	resetAt := w.start.Add(rl.interval)
	if w.count >= rl.limit {
		return Result{Allowed: false, Limit: rl.limit, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Result{Allowed: true, Limit: rl.limit, Remaining: rl.limit - w.count, ResetAt: resetAt}
}
