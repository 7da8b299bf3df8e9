package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps rates in Redis for a short ttl.
type RedisCache struct {
	client *redis.Client
	fiat   string
	ttl    time.Duration
	log    *slog.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache constructs a RedisCache. A non-positive ttl disables caching.
func NewRedisCache(client *redis.Client, fiat string, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, fiat: fiat, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (float64, bool) {
	if c.ttl <= 0 {
		return 0, false
	}

	raw, err := c.client.Get(ctx, c.key(symbol)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("rate cache read failed", slog.String("symbol", symbol), slog.Any("error", err))
		}
		return 0, false
	}

	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func (c *RedisCache) Set(ctx context.Context, symbol string, rate float64) {
	if c.ttl <= 0 {
		return
	}

	value := strconv.FormatFloat(rate, 'f', -1, 64)
	if err := c.client.Set(ctx, c.key(symbol), value, c.ttl).Err(); err != nil {
		c.log.Warn("rate cache write failed", slog.String("symbol", symbol), slog.Any("error", err))
	}
}

func (c *RedisCache) key(symbol string) string {
	return fmt.Sprintf("rate:%s:%s", c.fiat, symbol)
}
