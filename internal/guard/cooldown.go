// Package guard throttles repeated confirmations from a single user.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/storefront-bot/internal/clock"
)

// Cooldown decides whether a user may confirm again.
type Cooldown interface {
	// Allow reports whether the user is outside the cooldown window and, if so, starts a new one.
	Allow(ctx context.Context, userID int64) (bool, error)
}

// MemoryCooldown keeps the last accepted confirmation per user in memory.
type MemoryCooldown struct {
	clock  clock.Clock
	window time.Duration

	mu   sync.Mutex
	last map[int64]time.Time
}

// NewMemoryCooldown constructs an in-process Cooldown.
func NewMemoryCooldown(clk clock.Clock, window time.Duration) *MemoryCooldown {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCooldown{
		clock:  clk,
		window: window,
		last:   make(map[int64]time.Time),
	}
}

func (c *MemoryCooldown) Allow(_ context.Context, userID int64) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}

	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[userID]; ok && now.Sub(last) < c.window {
		return false, nil
	}
	c.last[userID] = now
	c.prune(now)
	return true, nil
}

// prune drops entries whose window already passed so the map does not grow unbounded.
func (c *MemoryCooldown) prune(now time.Time) {
	if len(c.last) < 1024 {
		return
	}
	for id, at := range c.last {
		if now.Sub(at) >= c.window {
			delete(c.last, id)
		}
	}
}

// RedisCooldown shares the cooldown across bot replicas using SET NX PX.
type RedisCooldown struct {
	client *redis.Client
	window time.Duration
	log    *slog.Logger
}

// NewRedisCooldown constructs a Redis-backed Cooldown.
func NewRedisCooldown(client *redis.Client, window time.Duration, log *slog.Logger) *RedisCooldown {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCooldown{client: client, window: window, log: log}
}

func (c *RedisCooldown) Allow(ctx context.Context, userID int64) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}

	acquired, err := c.client.SetNX(ctx, cooldownKey(userID), 1, c.window).Result()
	if err != nil {
		c.log.Error("failed to acquire confirm cooldown", slog.Int64("user_id", userID), slog.Any("error", err))
		return false, err
	}
	return acquired, nil
}

func cooldownKey(userID int64) string {
	return fmt.Sprintf("cooldown:confirm:%d", userID)
}
