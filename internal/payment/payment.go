// Package payment prices a confirmed order in crypto and verifies that it was paid.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/internal/state"
	"github.com/Proton-105/storefront-bot/pkg/metrics"
)

const (
	// DefaultTimeout abandons an unconfirmed payment.
	DefaultTimeout = 30 * time.Minute

	amountPrecision = 1e6
	sinkTimeout     = 10 * time.Second
)

var (
	// ErrAlreadyInProgress is returned when a payment was already initiated for the session.
	ErrAlreadyInProgress = errors.New("payment already in progress")
	// ErrNotInProgress is returned when confirming a session that has no pending payment.
	ErrNotInProgress = errors.New("no payment in progress")
)

// RateOracle converts one unit of a crypto symbol to the fiat currency.
type RateOracle interface {
	GetRate(ctx context.Context, symbol string) (float64, error)
}

// Verifier reports whether amount of symbol arrived at wallet. It never fails;
// transient errors are reported as not paid.
type Verifier interface {
	IsPaid(ctx context.Context, wallet, symbol string, amount float64) bool
}

// Order is the record emitted once per confirmed payment.
type Order struct {
	ID         string
	UserID     int64
	City       string
	Product    string
	Quantity   string
	Currency   string
	Amount     float64
	TotalPrice float64
	CreatedAt  time.Time
}

// OrderSink persists confirmed orders.
type OrderSink interface {
	RecordOrder(ctx context.Context, order Order) error
}

// Instructions is what the user needs to pay.
type Instructions struct {
	Wallet    string
	Symbol    string
	Amount    float64
	Total     float64
	ExpiresIn time.Duration
}

// Service orchestrates payment setup and confirmation on a working copy of the
// session. Callers hold the user's lock and save the session afterwards.
type Service struct {
	oracle   RateOracle
	verifier Verifier
	sink     OrderSink
	history  OrderCounter
	catalog  catalog.Provider
	sessions *state.Manager
	timeout  time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	completed map[int64]int

	pending sync.WaitGroup
}

// OrderCounter reports how many orders a user completed before this process started.
type OrderCounter interface {
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// Option customises a Service.
type Option func(*Service)

// WithOrderHistory seeds each user's completed-order counter from history on
// the user's first confirmed payment.
func WithOrderHistory(history OrderCounter) Option {
	return func(s *Service) { s.history = history }
}

// NewService wires a Service. sink may be nil.
func NewService(
	oracle RateOracle,
	verifier Verifier,
	sink OrderSink,
	provider catalog.Provider,
	sessions *state.Manager,
	timeout time.Duration,
	log *slog.Logger,
	opts ...Option,
) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		oracle:    oracle,
		verifier:  verifier,
		sink:      sink,
		catalog:   provider,
		sessions:  sessions,
		timeout:   timeout,
		log:       log.With(slog.String("component", "payment")),
		completed: make(map[int64]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Symbol resolves a currency key to its canonical symbol.
func (s *Service) Symbol(currencyKey string) string {
	for _, cur := range s.catalog.Currencies() {
		if strings.EqualFold(cur.Key, currencyKey) {
			return cur.Symbol
		}
	}
	return strings.ToUpper(strings.TrimSpace(currencyKey))
}

// Initiate prices the order and arms the payment timeout. On success the
// session moves to awaiting payment. On failure the session is left at the
// summary step with no payment state so the user can retry.
func (s *Service) Initiate(ctx context.Context, sess *state.Session) (Instructions, error) {
	if sess.PaymentInProgress {
		return Instructions{}, ErrAlreadyInProgress
	}
	if sess.Step != state.StateSummary || sess.Product == nil || sess.Quantity == "" ||
		sess.Currency == "" || !state.ValidWallet(sess.Wallet) {
		return Instructions{}, apperrors.NewSessionCorrupt("payment initiated with incomplete order")
	}

	sess.PaymentInProgress = true
	symbol := s.Symbol(sess.Currency)

	instructions, err := s.quote(ctx, sess, symbol)
	if err != nil {
		s.abort(sess)
		metrics.RecordPayment("initiate", "failed")
		s.log.Warn("payment setup failed",
			slog.Int64("user_id", sess.UserID),
			slog.String("symbol", symbol),
			slog.Any("error", err),
		)
		return Instructions{}, err
	}

	sess.ExpectedAmount = instructions.Amount
	sess.Step = state.StateAwaitingPayment
	s.armTimeout(sess)

	metrics.RecordPayment("initiate", "ok")
	s.log.Info("payment initiated",
		slog.Int64("user_id", sess.UserID),
		slog.String("symbol", symbol),
		slog.Float64("amount", instructions.Amount),
	)
	return instructions, nil
}

func (s *Service) quote(ctx context.Context, sess *state.Session, symbol string) (Instructions, error) {
	rate, err := s.oracle.GetRate(ctx, symbol)
	if err != nil {
		if errors.Is(err, apperrors.ErrRateUnavailable) {
			return Instructions{}, err
		}
		return Instructions{}, apperrors.NewRateUnavailable(symbol, err)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Instructions{}, apperrors.NewRateUnavailable(symbol, fmt.Errorf("invalid rate %v", rate))
	}

	amount := RoundAmount(sess.TotalPrice / rate)
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Instructions{}, apperrors.NewAmountInvalid(amount)
	}

	return Instructions{
		Wallet:    sess.Wallet,
		Symbol:    symbol,
		Amount:    amount,
		Total:     sess.TotalPrice,
		ExpiresIn: s.timeout,
	}, nil
}

func (s *Service) abort(sess *state.Session) {
	sess.PaymentInProgress = false
	sess.ExpectedAmount = 0
	s.sessions.Cancel(sess.UserID, state.ConcernPayment)
}

// armTimeout replaces any payment timer for the user. When it fires the
// session is discarded without notifying the user.
func (s *Service) armTimeout(sess *state.Session) {
	userID := sess.UserID
	s.sessions.Schedule(userID, sess.Generation, state.ConcernPayment, s.timeout, func(ctx context.Context, cur *state.Session) {
		if !cur.PaymentInProgress {
			return
		}
		if err := s.sessions.Teardown(ctx, userID); err != nil {
			s.log.Error("payment timeout teardown failed", slog.Int64("user_id", userID), slog.Any("error", err))
			return
		}
		metrics.RecordPayment("timeout", "expired")
		s.log.Info("payment abandoned", slog.Int64("user_id", userID))
	})
}

// Confirm asks the verifier whether the pending payment arrived. A false
// result is not an error: the session moves to the verification loop and the
// payment timer keeps running.
func (s *Service) Confirm(ctx context.Context, sess *state.Session) (bool, error) {
	if !sess.PaymentInProgress || sess.ExpectedAmount <= 0 || sess.Wallet == "" || sess.Currency == "" {
		return false, ErrNotInProgress
	}

	symbol := s.Symbol(sess.Currency)
	if !s.verifier.IsPaid(ctx, sess.Wallet, symbol, sess.ExpectedAmount) {
		sess.Step = state.StatePaymentVerify
		metrics.RecordPayment("confirm", "pending")
		return false, nil
	}

	s.sessions.Cancel(sess.UserID, state.ConcernPayment)
	sess.PaymentInProgress = false

	completed := s.countCompleted(ctx, sess.UserID)

	s.record(Order{
		ID:         uuid.NewString(),
		UserID:     sess.UserID,
		City:       sess.City,
		Product:    sess.Product.Name,
		Quantity:   sess.Quantity,
		Currency:   symbol,
		Amount:     sess.ExpectedAmount,
		TotalPrice: sess.TotalPrice,
		CreatedAt:  s.sessions.Clock().Now().UTC(),
	})

	metrics.RecordPayment("confirm", "paid")
	s.log.Info("payment confirmed",
		slog.Int64("user_id", sess.UserID),
		slog.String("symbol", symbol),
		slog.Float64("amount", sess.ExpectedAmount),
		slog.Int("completed_orders", completed),
	)
	return true, nil
}

// countCompleted increments the user's counter, seeding it from history the
// first time the user is seen. History failures start the count at zero.
func (s *Service) countCompleted(ctx context.Context, userID int64) int {
	s.mu.Lock()
	_, seen := s.completed[userID]
	s.mu.Unlock()

	seed := 0
	if !seen && s.history != nil {
		n, err := s.history.CountByUser(ctx, userID)
		if err != nil {
			s.log.Warn("order history unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
		} else {
			seed = n
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.completed[userID]; !ok {
		s.completed[userID] = seed
	}
	s.completed[userID]++
	return s.completed[userID]
}

// record writes the order in the background. Failures are logged only.
func (s *Service) record(order Order) {
	if s.sink == nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		if err := s.sink.RecordOrder(ctx, order); err != nil {
			s.log.Error("failed to record order",
				slog.String("order_id", order.ID),
				slog.Int64("user_id", order.UserID),
				slog.Any("error", err),
			)
		}
	}()
}

// Wait blocks until background order writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

// CompletedOrders returns how many payments the user completed, including
// history loaded on the user's first confirmation in this process.
func (s *Service) CompletedOrders(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[userID]
}

// RoundAmount rounds to six decimal places.
func RoundAmount(v float64) float64 {
	return math.Round(v*amountPrecision) / amountPrecision
}
