// Package idempotency drops Telegram updates that were already processed.
package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/storefront-bot/internal/clock"
)

// Store claims update keys. A key can be claimed once per ttl.
type Store interface {
	// Claim reports true the first time key is seen within ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisStore claims keys with SET NX so redeliveries are rejected across replicas.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore constructs a Redis-backed Store.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, recordKey(key), 1, ttl).Result()
	if err != nil {
		s.log.Error("failed to claim idempotency key", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return acquired, nil
}

func recordKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// MemoryStore claims keys in process memory.
type MemoryStore struct {
	clock clock.Clock

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{clock: clk, seen: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, expires := range s.seen {
		if !now.Before(expires) {
			delete(s.seen, k)
		}
	}

	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)
	return true, nil
}
