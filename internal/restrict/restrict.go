// Package restrict bars users from further interaction after a completed order.
package restrict

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const bannedSetKey = "restrict:users"

// Store records restricted users.
type Store interface {
	Restrict(ctx context.Context, userID int64) error
	IsRestricted(ctx context.Context, userID int64) (bool, error)
}

// RedisStore keeps restricted user ids in a Redis set.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStore constructs a Redis-backed Store.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Restrict(ctx context.Context, userID int64) error {
	if err := s.client.SAdd(ctx, bannedSetKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
		s.log.Error("failed to restrict user", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}
	s.log.Info("user restricted", slog.Int64("user_id", userID))
	return nil
}

func (s *RedisStore) IsRestricted(ctx context.Context, userID int64) (bool, error) {
	return s.client.SIsMember(ctx, bannedSetKey, strconv.FormatInt(userID, 10)).Result()
}

// MemoryStore keeps restricted users in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[int64]struct{}
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]struct{})}
}

func (s *MemoryStore) Restrict(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) IsRestricted(_ context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}
