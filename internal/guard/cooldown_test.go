package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/storefront-bot/internal/clock"
)

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cd := NewMemoryCooldown(clk, 3*time.Second)

	ok, err := cd.Allow(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = cd.Allow(ctx, 1)
	assert.False(t, ok, "second confirm inside window")

	ok, _ = cd.Allow(ctx, 2)
	assert.True(t, ok, "other users are independent")

	clk.Advance(3 * time.Second)
	ok, _ = cd.Allow(ctx, 1)
	assert.True(t, ok)
}

func TestMemoryCooldownDisabled(t *testing.T) {
	cd := NewMemoryCooldown(nil, 0)
	for i := 0; i < 3; i++ {
		ok, err := cd.Allow(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	cd := NewRedisCooldown(client, 3*time.Second, nil)

	ok, err := cd.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cd.Allow(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(3 * time.Second)
	ok, err = cd.Allow(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCooldownError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	cd := NewRedisCooldown(client, time.Second, nil)
	ok, err := cd.Allow(context.Background(), 1)
	assert.Error(t, err)
	assert.False(t, ok)
}
