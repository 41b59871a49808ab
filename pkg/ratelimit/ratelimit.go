// Package ratelimit implements a fixed-window rate limiter on Redis.
// Used for the per-user issue creation budget and per-API-key limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Redis-backed limiter.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow increments the counter for key in the current window and reports
// whether the request is within limit. When denied, retryAfter is the
// number of seconds until the window resets.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(window.Seconds()))

	count, err := l.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, bucket, window).Err(); err != nil {
			return false, 0, fmt.Errorf("expire: %w", err)
		}
	}
	if count > int64(limit) {
		ttl, err := l.client.TTL(ctx, bucket).Result()
		if err != nil || ttl < 0 {
			ttl = window
		}
		return false, int(ttl.Seconds()), nil
	}
	return true, 0, nil
}
