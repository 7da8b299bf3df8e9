package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/storefront-bot/internal/clock"
	"github.com/Proton-105/storefront-bot/pkg/config"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewRedisLimiter(client, clock.NewFake(epoch), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "user:1", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i < 2, result.Allowed, "request %d", i)
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	_, client := setupTestRedis(t)
	clk := clock.NewFake(epoch)
	limiter := NewRedisLimiter(client, clk, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:1", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	clk.Advance(1100 * time.Millisecond)

	result, err := limiter.Check(ctx, "user:1", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter(t *testing.T) {
	clk := clock.NewFake(epoch)
	limiter := NewMemoryLimiter(clk)
	ctx := context.Background()

	_, err := limiter.Check(ctx, "k", 1, time.Minute)
	require.NoError(t, err)

	result, err := limiter.Check(ctx, "k", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)

	clk.Advance(time.Minute)
	_, err = limiter.Check(ctx, "k", 1, time.Minute)
	assert.NoError(t, err)

	clk.Advance(time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(time.Minute))
}

func TestAdaptiveLimiterFallsBack(t *testing.T) {
	mr, client := setupTestRedis(t)
	clk := clock.NewFake(epoch)
	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, clk, testLogger()), NewMemoryLimiter(clk), testLogger())
	ctx := context.Background()

	mr.Close()

	// Fallback halves the limit: 4 becomes 2.
	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "user:1", 4, time.Minute)
		require.NoError(t, err)
	}
	_, err := limiter.Check(ctx, "user:1", 4, time.Minute)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
}

func TestCleanerRemovesIdleKeys(t *testing.T) {
	mr, client := setupTestRedis(t)
	clk := clock.NewFake(epoch)
	limiter := NewRedisLimiter(client, clk, testLogger())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:1", 5, time.Hour)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	cleaner := NewCleaner(client, nil, clk, testLogger(), time.Minute, 5*time.Minute)
	assert.Equal(t, 1, cleaner.Cleanup(ctx))
	assert.False(t, mr.Exists("ratelimit:user:1"))
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Whitelist: []int64{7},
		PerUser:   config.RateLimitRule{Limit: 20, Window: "1m"},
	}, 9)

	assert.True(t, rules.IsWhitelisted(7))
	assert.True(t, rules.IsWhitelisted(9))
	assert.False(t, rules.IsWhitelisted(1))

	limit, window, err := rules.PerUser()
	require.NoError(t, err)
	assert.Equal(t, 20, limit)
	assert.Equal(t, time.Minute, window)

	_, _, err = NewRules(config.RateLimitConfig{}).PerUser()
	assert.Error(t, err)
}
