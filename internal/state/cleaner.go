package state

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Cleaner tears down sessions that have been idle longer than ttl. Sessions
// with a payment or delivery in flight are left to their own timers.
type Cleaner struct {
	manager  *Manager
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(manager *Manager, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		manager:  manager,
		log:      log,
		ttl:      ttl,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.manager == nil || c.ttl <= 0 || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of sessions removed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	sessions, err := c.manager.List(ctx)
	if err != nil {
		c.log.Error("state cleaner list failed", slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, candidate := range sessions {
		if !c.expired(candidate) {
			continue
		}
		if c.clearIfStale(ctx, candidate.UserID) {
			removed++
		}
	}
	return removed
}

func (c *Cleaner) clearIfStale(ctx context.Context, userID int64) bool {
	unlock := c.manager.Lock(userID)
	defer unlock()

	// Re-read under the lock; the user may have moved on since List.
	sess, err := c.manager.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			c.log.Error("state cleaner failed to load session", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return false
	}
	if !c.expired(sess) {
		return false
	}

	if err := c.manager.Teardown(ctx, userID); err != nil {
		c.log.Error("state cleaner failed to clear session", slog.Int64("user_id", userID), slog.Any("error", err))
		return false
	}
	c.log.Info("state session cleared", slog.Int64("user_id", userID), slog.String("step", string(sess.Step)))
	return true
}

func (c *Cleaner) expired(sess *Session) bool {
	if sess.PaymentInProgress || sess.DeliveryInProgress {
		return false
	}
	return c.manager.Clock().Now().Sub(sess.UpdatedAt) > c.ttl
}
