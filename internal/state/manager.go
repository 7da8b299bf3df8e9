package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/Proton-105/storefront-bot/internal/clock"
	"github.com/Proton-105/storefront-bot/pkg/logger"
)

// Manager owns sessions, per-user serialization and per-user timers.
//
// Every mutation of a user's session happens while holding that user's lock.
// Timer callbacks acquire the same lock and only run against the session
// generation they were armed for, so a callback racing a reset is dropped.
type Manager struct {
	store      Store
	timers     *Timers
	locks      *userLocks
	clock      clock.Clock
	log        *slog.Logger
	generation atomic.Uint64
}

// NewManager wires a Manager around store and clk.
func NewManager(store Store, clk clock.Clock, log *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:  store,
		timers: NewTimers(clk),
		locks:  newUserLocks(),
		clock:  clk,
		log:    log.With(slog.String("component", "state_manager")),
	}
}

// Clock returns the clock used for timers and timestamps.
func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// Timers exposes the timer registry for inspection.
func (m *Manager) Timers() *Timers {
	return m.timers
}

// Lock serializes work for a user. The returned func releases the lock and is safe to call twice.
func (m *Manager) Lock(userID int64) func() {
	return m.locks.lock(userID)
}

// Load returns a copy of the user's session. Callers must hold the user's lock.
func (m *Manager) Load(ctx context.Context, userID int64) (*Session, error) {
	return m.store.Get(ctx, userID)
}

// Start tears down any existing session and stores a fresh one at the initial state.
func (m *Manager) Start(ctx context.Context, userID int64) (*Session, error) {
	if err := m.Teardown(ctx, userID); err != nil {
		return nil, err
	}

	now := m.clock.Now()
	sess := &Session{
		UserID:     userID,
		Generation: m.generation.Add(1),
		Step:       Initial,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	return sess.Clone(), nil
}

// Save persists sess, stamping UpdatedAt.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = m.clock.Now()
	if err := m.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Teardown cancels every timer the user owns and removes the session.
func (m *Manager) Teardown(ctx context.Context, userID int64) error {
	cancelled := m.timers.CancelAll(userID)
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if cancelled > 0 {
		m.log.Debug("session torn down",
			slog.Int64("user_id", userID),
			slog.Int("timers_cancelled", cancelled),
		)
	}
	return nil
}

// Schedule arms fn for the user's concern. When the timer fires, fn runs under
// the user's lock with the current session, provided the session still exists
// and carries generation. A panic in fn is logged and tears the session down.
func (m *Manager) Schedule(userID int64, generation uint64, concern Concern, d time.Duration, fn func(ctx context.Context, sess *Session)) {
	m.timers.Arm(userID, concern, d, func() {
		ctx := logger.WithCorrelationID(context.Background())

		unlock := m.Lock(userID)
		defer unlock()
		defer m.recoverTimer(ctx, userID, concern)

		sess, err := m.store.Get(ctx, userID)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				m.log.Error("timer failed to load session",
					slog.Int64("user_id", userID),
					slog.String("concern", string(concern)),
					slog.Any("error", err),
				)
			}
			return
		}
		if sess.Generation != generation {
			m.log.Debug("stale timer dropped",
				slog.Int64("user_id", userID),
				slog.String("concern", string(concern)),
			)
			return
		}

		fn(ctx, sess)
	})
}

func (m *Manager) recoverTimer(ctx context.Context, userID int64, concern Concern) {
	r := recover()
	if r == nil {
		return
	}

	m.log.Error("timer callback panicked, session reset",
		slog.Int64("user_id", userID),
		slog.String("concern", string(concern)),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())),
	)
	if err := m.Teardown(ctx, userID); err != nil {
		m.log.Error("teardown after timer panic failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// Cancel stops a single timer for the user.
func (m *Manager) Cancel(userID int64, concern Concern) bool {
	return m.timers.Cancel(userID, concern)
}

// List returns copies of every live session.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	return m.store.List(ctx)
}

// CountByState reports live sessions grouped by step.
func (m *Manager) CountByState() map[string]int {
	sessions, err := m.store.List(context.Background())
	if err != nil {
		m.log.Warn("count sessions failed", slog.Any("error", err))
		return nil
	}

	counts := make(map[string]int, len(flow))
	for _, sess := range sessions {
		counts[string(sess.Step)]++
	}
	return counts
}
