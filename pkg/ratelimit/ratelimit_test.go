package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, retryAfter, err := l.Allow(ctx, "user:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retryAfter)
	}
}

func TestDeniedOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := l.Allow(ctx, "user:1", 2, time.Minute)
		require.NoError(t, err)
	}
	allowed, retryAfter, err := l.Allow(ctx, "user:1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
}

func TestKeysIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	_, _, err := l.Allow(ctx, "user:1", 1, time.Minute)
	require.NoError(t, err)
	allowed, _, err := l.Allow(ctx, "user:2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
