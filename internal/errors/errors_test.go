package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("initiate: %w", NewRateUnavailable("BTC", stdErrors.New("timeout")))

	assert.True(t, stdErrors.Is(err, ErrRateUnavailable))
	assert.False(t, stdErrors.Is(err, ErrAmountInvalid))
	assert.Contains(t, err.Error(), "timeout")
}

func TestHandler_Handle(t *testing.T) {
	h := NewHandler(testLogger(), false)

	testCases := []struct {
		name          string
		err           error
		wantMessage   string
		wantRetryable bool
	}{
		{name: "nil error", err: nil, wantMessage: "", wantRetryable: false},
		{name: "app error", err: NewRateUnavailable("BTC", nil), wantMessage: NewRateUnavailable("", nil).UserMessage, wantRetryable: true},
		{name: "wrapped app error", err: fmt.Errorf("outer: %w", NewSessionCorrupt("bad step")), wantMessage: NewSessionCorrupt("").UserMessage},
		{name: "plain error", err: stdErrors.New("boom"), wantMessage: defaultUserMessage},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			msg, retryable := h.Handle(context.Background(), tc.err)
			assert.Equal(t, tc.wantMessage, msg)
			assert.Equal(t, tc.wantRetryable, retryable)
		})
	}
}

func TestWithRetry(t *testing.T) {
	fast := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), fast, func(context.Context) error {
			calls++
			if calls < 3 {
				return NewRateUnavailable("BTC", nil)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), fast, func(context.Context) error {
			calls++
			return NewRateUnavailable("BTC", nil)
		})
		assert.ErrorIs(t, err, ErrRateUnavailable)
		assert.Equal(t, 3, calls)
	})

	t.Run("non retryable returns immediately", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), fast, func(context.Context) error {
			calls++
			return NewAmountInvalid(-1)
		})
		assert.ErrorIs(t, err, ErrAmountInvalid)
		assert.Equal(t, 1, calls)
	})

	t.Run("attempt timeout is enforced", func(t *testing.T) {
		policy := fast
		policy.AttemptTimeout = 10 * time.Millisecond
		calls := 0
		err := WithRetry(context.Background(), policy, func(ctx context.Context) error {
			calls++
			<-ctx.Done()
			return ctx.Err()
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, fast, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCircuitBreaker(t *testing.T) {
	cfg := BreakerConfig{ErrorThreshold: 0.5, MinRequests: 2, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1}
	cb := NewCircuitBreaker(cfg)
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }

	failure := stdErrors.New("down")
	_ = cb.Call(func() error { return failure })
	_ = cb.Call(func() error { return failure })
	assert.Equal(t, BreakerOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, BreakerClosed, cb.State())
}
