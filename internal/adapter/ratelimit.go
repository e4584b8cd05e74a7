package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter coordinates adapter calls for one agent across
// concurrently-running matches that share the same adapter instance,
// using the same Incr+Expire pipeline pattern as the teacher's
// CacheService.Increment. When max_parallel_matches > 1, several matches
// can otherwise slam one back-end well past what its own rate limit
// tolerates even though each match only ever makes a single retry.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter returns a limiter budgeting limit calls per window,
// per key passed to Wait (the OpenAI-compatible adapter passes its model
// identifier).
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

// Wait increments the per-agent counter and, if the window's budget is
// already spent, sleeps for one window (bounded by ctx) and then lets the
// call proceed without checking the counter again. It never blocks
// indefinitely: a caller's shot clock still governs the overall Query call.
func (l *RedisRateLimiter) Wait(ctx context.Context, agentID string) error {
	key := fmt.Sprintf("agenttourney:ratelimit:%s", agentID)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Don't block the match loop on limiter infrastructure errors;
		// fail open.
		return nil
	}

	if incr.Val() <= int64(l.limit) {
		return nil
	}

	select {
	case <-time.After(l.window):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoopRateLimiter is used when no Redis address is configured; Wait is a
// pure no-op pass-through so adapter behavior is unmodified.
type NoopRateLimiter struct{}

func (NoopRateLimiter) Wait(ctx context.Context, agentID string) error { return nil }
