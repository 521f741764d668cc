package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a distributed fixed-window limiter for multi-instance
// deployments, sharing counters across every aigosd process via Redis
// INCR+EXPIRE, grounded on the teacher pack's
// wisbric-nightowl/internal/auth/ratelimit.go (same INCR-then-set-TTL-on-
// first-increment shape, generalized from a login-attempt counter to the
// (channel, orgId) key this package's in-process RateLimiter uses).
type RedisRateLimiter struct {
	client   *redis.Client
	limit    int
	interval time.Duration
	prefix   string
}

// NewRedisRateLimiter constructs a RedisRateLimiter sharing limit calls per
// interval per key across every client of rdb.
func NewRedisRateLimiter(rdb *redis.Client, limit int, interval time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: rdb, limit: limit, interval: interval, prefix: "aigos:ratelimit:"}
}

// Allow implements the Limiter interface so a Pipeline can use a
// RedisRateLimiter interchangeably with the in-process RateLimiter. Redis
// errors fail the check open (allowed) rather than blocking ingestion on a
// cache outage, logging the error for operators to act on.
func (rl *RedisRateLimiter) Allow(key string) Result {
	res, err := rl.AllowCtx(context.Background(), key)
	if err != nil {
		slog.Default().Error("redis rate limiter unavailable, failing open", "error", err)
		return Result{Allowed: true, Limit: rl.limit, Remaining: rl.limit}
	}
	return res
}

// AllowCtx is the context-aware form of Allow, for callers that already
// carry a request context through to the limiter check.
func (rl *RedisRateLimiter) AllowCtx(ctx context.Context, key string) (Result, error) {
	redisKey := rl.prefix + key

	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: redis incr: %w", err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.interval).Err(); err != nil {
			return Result{}, fmt.Errorf("ingestion: redis expire: %w", err)
		}
	}

	ttl, err := rl.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: redis ttl: %w", err)
	}
	if ttl < 0 {
		ttl = rl.interval
	}
	resetAt := time.Now().Add(ttl)

	if count > int64(rl.limit) {
		return Result{Allowed: false, Limit: rl.limit, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Limit: rl.limit, Remaining: rl.limit - int(count), ResetAt: resetAt}, nil
}
