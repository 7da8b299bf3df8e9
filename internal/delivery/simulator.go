// Package delivery plays a timed delivery timeline after payment and tears the
// session down when it ends.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Proton-105/storefront-bot/internal/notify"
	"github.com/Proton-105/storefront-bot/internal/restrict"
	"github.com/Proton-105/storefront-bot/internal/state"
	"github.com/Proton-105/storefront-bot/pkg/metrics"
)

const (
	DefaultWatchdog        = 27 * time.Minute
	DefaultAutoDeleteDelay = time.Minute
)

const closingNotice = "Заказ завершён. Доступ к боту закрыт."

// Config controls cleanup policy.
type Config struct {
	AutoDelete      bool
	AutoDeleteDelay time.Duration
	AutoBan         bool
	Watchdog        time.Duration
	// IsAdmin exempts a user from auto-delete and auto-ban.
	IsAdmin func(userID int64) bool
}

// Simulator drives delivery timelines. All entry points expect the caller
// to hold the user's lock; timer callbacks acquire it through the Manager.
type Simulator struct {
	sessions   *state.Manager
	notifier   notify.Notifier
	restrictor restrict.Store
	cfg        Config
	scripts    map[string]Script
	jitter     func(max time.Duration) time.Duration
	log        *slog.Logger
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithScripts replaces the delivery timelines.
func WithScripts(scripts map[string]Script) Option {
	return func(s *Simulator) { s.scripts = scripts }
}

// WithJitter replaces the random delay source.
func WithJitter(fn func(max time.Duration) time.Duration) Option {
	return func(s *Simulator) { s.jitter = fn }
}

// NewSimulator wires a Simulator. restrictor may be nil when auto-ban is off.
func NewSimulator(sessions *state.Manager, notifier notify.Notifier, restrictor restrict.Store, cfg Config, log *slog.Logger, opts ...Option) *Simulator {
	if cfg.Watchdog <= 0 {
		cfg.Watchdog = DefaultWatchdog
	}
	if cfg.AutoDeleteDelay <= 0 {
		cfg.AutoDeleteDelay = DefaultAutoDeleteDelay
	}
	if cfg.IsAdmin == nil {
		cfg.IsAdmin = func(int64) bool { return false }
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Simulator{
		sessions:   sessions,
		notifier:   notifier,
		restrictor: restrictor,
		cfg:        cfg,
		scripts:    DefaultScripts(),
		jitter: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max) + 1))
		},
		log: log.With(slog.String("component", "delivery")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start moves sess into delivery, sends the first notification and arms the
// step chain and the watchdog. The caller saves sess afterwards.
func (s *Simulator) Start(ctx context.Context, sess *state.Session) error {
	script, ok := s.scripts[sess.DeliveryMethod]
	if !ok || len(script) == 0 {
		return fmt.Errorf("no delivery script for method %q", sess.DeliveryMethod)
	}

	sess.Step = state.StateDelivering
	sess.PaymentInProgress = false
	sess.DeliveryInProgress = true
	sess.CleanupScheduled = false

	offsets := script.schedule(s.jitter)
	userID, generation := sess.UserID, sess.Generation

	s.sessions.Schedule(userID, generation, state.ConcernWatchdog, s.cfg.Watchdog, func(ctx context.Context, cur *state.Session) {
		s.log.Warn("delivery watchdog fired", slog.Int64("user_id", userID))
		metrics.RecordDelivery(cur.DeliveryMethod, "watchdog")
		s.finish(ctx, cur)
	})

	metrics.RecordDelivery(sess.DeliveryMethod, "started")
	s.log.Info("delivery started", slog.Int64("user_id", userID), slog.String("method", sess.DeliveryMethod))

	s.runStep(ctx, sess, script, offsets, 0)
	return nil
}

// runStep sends step i and arms the next one. The final step hands over to cleanup.
func (s *Simulator) runStep(ctx context.Context, sess *state.Session, script Script, offsets []time.Duration, i int) {
	final := i == len(script)-1
	s.send(ctx, sess, script[i].Text, !final)

	if final {
		delay := time.Duration(0)
		if s.autoDelete(sess.UserID) {
			delay = s.cfg.AutoDeleteDelay
		}
		s.sessions.Schedule(sess.UserID, sess.Generation, state.ConcernDelivery, delay, func(ctx context.Context, cur *state.Session) {
			s.finish(ctx, cur)
		})
		return
	}

	next := i + 1
	s.sessions.Schedule(sess.UserID, sess.Generation, state.ConcernDelivery, offsets[next]-offsets[i], func(ctx context.Context, cur *state.Session) {
		if !cur.DeliveryInProgress || cur.CleanupScheduled {
			return
		}
		s.runStep(ctx, cur, script, offsets, next)
		if err := s.sessions.Save(ctx, cur); err != nil {
			s.log.Error("failed to save delivery progress", slog.Int64("user_id", cur.UserID), slog.Any("error", err))
		}
	})
}

// send notifies the user and tracks the message. Intermediate messages
// self-delete when the policy applies.
func (s *Simulator) send(ctx context.Context, sess *state.Session, text string, selfDelete bool) {
	msgID, err := s.notifier.Send(ctx, sess.UserID, notify.Message{Text: text, Kind: notify.KindDelivery})
	if err != nil {
		s.log.Warn("delivery notification failed", slog.Int64("user_id", sess.UserID), slog.Any("error", err))
		return
	}
	sess.TrackMessage(msgID)

	if !selfDelete || msgID == 0 || !s.autoDelete(sess.UserID) {
		return
	}

	userID := sess.UserID
	s.sessions.Schedule(userID, sess.Generation, state.AutoDeleteConcern(msgID), s.cfg.AutoDeleteDelay, func(ctx context.Context, cur *state.Session) {
		if err := s.notifier.Delete(ctx, userID, msgID); err != nil {
			s.log.Debug("auto-delete failed", slog.Int64("user_id", userID), slog.Int("message_id", msgID), slog.Any("error", err))
		}
		cur.MessageIDs = without(cur.MessageIDs, msgID)
		if err := s.sessions.Save(ctx, cur); err != nil {
			s.log.Error("failed to save after auto-delete", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	})
}

// Finish runs terminal cleanup for the user's current session. It is safe to
// call more than once; only the first call has effects.
func (s *Simulator) Finish(ctx context.Context, userID int64) {
	sess, err := s.sessions.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, state.ErrSessionNotFound) {
			s.log.Error("cleanup failed to load session", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return
	}
	s.finish(ctx, sess)
}

func (s *Simulator) finish(ctx context.Context, sess *state.Session) {
	if sess.CleanupScheduled {
		return
	}
	sess.CleanupScheduled = true
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.log.Error("failed to mark cleanup", slog.Int64("user_id", sess.UserID), slog.Any("error", err))
	}

	userID := sess.UserID
	admin := s.cfg.IsAdmin(userID)

	if s.cfg.AutoDelete && !admin {
		for _, id := range sess.MessageIDs {
			if err := s.notifier.Delete(ctx, userID, id); err != nil {
				s.log.Debug("cleanup delete failed", slog.Int64("user_id", userID), slog.Int("message_id", id), slog.Any("error", err))
			}
		}
	}

	if s.cfg.AutoBan && !admin && s.restrictor != nil {
		if _, err := s.notifier.Send(ctx, userID, notify.Message{Text: closingNotice, Kind: notify.KindNotice}); err != nil {
			s.log.Warn("closing notice failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		if err := s.restrictor.Restrict(ctx, userID); err != nil {
			s.log.Error("failed to restrict user", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}

	if err := s.sessions.Teardown(ctx, userID); err != nil {
		s.log.Error("delivery teardown failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return
	}

	metrics.RecordDelivery(sess.DeliveryMethod, "completed")
	s.log.Info("delivery completed", slog.Int64("user_id", userID))
}

func (s *Simulator) autoDelete(userID int64) bool {
	return s.cfg.AutoDelete && !s.cfg.IsAdmin(userID)
}

func without(ids []int, drop int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
