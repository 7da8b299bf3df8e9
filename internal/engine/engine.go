// Package engine drives the ordering conversation: it validates each user
// input against the current step, advances or rejects, and hands paid orders
// to delivery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/delivery"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/internal/guard"
	"github.com/Proton-105/storefront-bot/internal/notify"
	"github.com/Proton-105/storefront-bot/internal/payment"
	"github.com/Proton-105/storefront-bot/internal/state"
	"github.com/Proton-105/storefront-bot/pkg/metrics"
)

// Config toggles optional parts of the conversation.
type Config struct {
	PromoEnabled   bool
	PaymentTimeout time.Duration
}

// Deps are the collaborators the engine orchestrates.
type Deps struct {
	Sessions *state.Manager
	Catalog  catalog.Provider
	Payments *payment.Service
	Delivery *delivery.Simulator
	Notifier notify.Notifier
	Cooldown guard.Cooldown
	Errors   *apperrors.Handler
}

// Engine is safe for concurrent use; inputs for one user are serialized.
type Engine struct {
	sessions *state.Manager
	catalog  catalog.Provider
	payments *payment.Service
	delivery *delivery.Simulator
	notifier notify.Notifier
	cooldown guard.Cooldown
	errors   *apperrors.Handler
	cfg      Config
	log      *slog.Logger

	handlers map[state.State]stepFunc
}

// New builds an Engine.
func New(deps Deps, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = payment.DefaultTimeout
	}
	if deps.Errors == nil {
		deps.Errors = apperrors.NewHandler(log, false)
	}

	e := &Engine{
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		payments: deps.Payments,
		delivery: deps.Delivery,
		notifier: deps.Notifier,
		cooldown: deps.Cooldown,
		errors:   deps.Errors,
		cfg:      cfg,
		log:      log.With(slog.String("component", "engine")),
	}
	e.handlers = e.steps()
	return e
}

// Handle processes one text input from a user.
func (e *Engine) Handle(ctx context.Context, userID int64, text string) (err error) {
	unlock := e.sessions.Lock(userID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while handling input",
				slog.Int64("user_id", userID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = e.reset(ctx, userID, msgFailure)
		}
	}()

	cmd := ParseCommand(text)
	if cmd == CmdRestart {
		return e.reset(ctx, userID, "")
	}

	sess, err := e.sessions.Load(ctx, userID)
	if errors.Is(err, state.ErrSessionNotFound) {
		return e.reset(ctx, userID, "")
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if err := sess.Validate(); err != nil {
		e.log.Warn("corrupt session reset", slog.Int64("user_id", userID), slog.Any("error", err))
		return e.reset(ctx, userID, msgCorrupt)
	}

	if cmd == CmdConfirm && !e.allowConfirm(ctx, userID) {
		e.log.Info("confirm flood, session reset", slog.Int64("user_id", userID), slog.String("state", string(sess.Step)))
		return e.reset(ctx, userID, msgFlood)
	}

	if sess.Step == state.StateDelivering {
		return e.notice(ctx, sess, msgDelivering)
	}

	if cmd == CmdBack {
		return e.back(ctx, sess)
	}

	handler, ok := e.handlers[sess.Step]
	if !ok {
		return e.reset(ctx, userID, msgCorrupt)
	}

	work := sess.Clone()
	next, err := handler(ctx, work, text, cmd)
	switch {
	case errors.Is(err, errRejected):
		return e.reject(ctx, sess)
	case errors.Is(err, errRestart):
		return e.reset(ctx, userID, msgCancelled)
	case err != nil:
		return e.fail(ctx, userID, err)
	}

	return e.advance(ctx, sess.Step, work, next)
}

// allowConfirm fails open when the cooldown backend errors.
func (e *Engine) allowConfirm(ctx context.Context, userID int64) bool {
	if e.cooldown == nil {
		return true
	}
	ok, err := e.cooldown.Allow(ctx, userID)
	if err != nil {
		e.log.Warn("cooldown check failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return true
	}
	return ok
}

// advance commits the working copy at next and prompts for it.
func (e *Engine) advance(ctx context.Context, from state.State, work *state.Session, next state.State) error {
	work.Step = next
	if next != state.StateDelivering {
		e.reply(ctx, work, e.prompt(work))
	}

	if err := e.sessions.Save(ctx, work); err != nil {
		return e.fail(ctx, work.UserID, err)
	}

	if from != next {
		metrics.RecordStateTransition(string(from), string(next))
	}
	e.log.Debug("input accepted",
		slog.Int64("user_id", work.UserID),
		slog.String("from", string(from)),
		slog.String("to", string(next)),
	)
	return nil
}

// reject re-sends the current options. Only the message id is recorded on the session.
func (e *Engine) reject(ctx context.Context, sess *state.Session) error {
	current := e.prompt(sess)
	e.reply(ctx, sess, notify.Message{Text: msgReject, Options: current.Options, Kind: notify.KindReject})
	metrics.RecordRejection(string(sess.Step))

	if err := e.sessions.Save(ctx, sess); err != nil {
		return e.fail(ctx, sess.UserID, err)
	}
	return nil
}

func (e *Engine) notice(ctx context.Context, sess *state.Session, text string) error {
	e.reply(ctx, sess, notify.Message{Text: text, Kind: notify.KindNotice})
	if err := e.sessions.Save(ctx, sess); err != nil {
		return e.fail(ctx, sess.UserID, err)
	}
	return nil
}

func (e *Engine) back(ctx context.Context, sess *state.Session) error {
	if sess.Step == state.StateRegion {
		return e.reset(ctx, sess.UserID, "")
	}

	prev, ok := state.Previous(sess.Step, e.cfg.PromoEnabled)
	if !ok {
		return e.reject(ctx, sess)
	}

	work := sess.Clone()
	work.ClearFrom(prev)
	return e.advance(ctx, sess.Step, work, prev)
}

// reset discards the session, starts a new one and shows the first prompt,
// preceded by notice when set.
func (e *Engine) reset(ctx context.Context, userID int64, notice string) error {
	sess, err := e.sessions.Start(ctx, userID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	if notice != "" {
		e.reply(ctx, sess, notify.Message{Text: notice, Kind: notify.KindNotice})
	}
	e.reply(ctx, sess, e.prompt(sess))

	if err := e.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// fail reports err and falls back to a fresh session.
func (e *Engine) fail(ctx context.Context, userID int64, err error) error {
	e.errors.Handle(ctx, err)
	if resetErr := e.reset(ctx, userID, msgFailure); resetErr != nil {
		return errors.Join(err, resetErr)
	}
	return nil
}

// reply sends msg and tracks its id on sess. Send failures are logged only.
func (e *Engine) reply(ctx context.Context, sess *state.Session, msg notify.Message) {
	id, err := e.notifier.Send(ctx, sess.UserID, msg)
	if err != nil {
		e.log.Warn("failed to send message",
			slog.Int64("user_id", sess.UserID),
			slog.String("kind", string(msg.Kind)),
			slog.Any("error", err),
		)
		return
	}
	sess.TrackMessage(id)
}

func (e *Engine) symbol(sess *state.Session) string {
	return e.payments.Symbol(sess.Currency)
}

func (e *Engine) paymentWindow() string {
	return fmt.Sprintf("%d мин", int(e.cfg.PaymentTimeout.Round(time.Minute)/time.Minute))
}
