// Package oracle fetches crypto exchange rates over HTTP.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rate_oracle_requests_total",
	Help: "Rate oracle lookups by source and result.",
}, []string{"source", "result"})

// Config tunes the HTTP oracle client.
type Config struct {
	BaseURL        string
	Fiat           string
	AttemptTimeout time.Duration
	MaxAttempts    int
	Breaker        apperrors.BreakerConfig
}

// Cache stores recently fetched rates.
type Cache interface {
	Get(ctx context.Context, symbol string) (float64, bool)
	Set(ctx context.Context, symbol string, rate float64)
}

type rateResponse struct {
	Symbol string  `json:"symbol"`
	Fiat   string  `json:"fiat"`
	Rate   float64 `json:"rate"`
}

// errTransient marks failures worth another attempt.
var errTransient = errors.New("transient oracle failure")

// Client implements payment.RateOracle against a JSON rate endpoint:
// GET {base}/rate?symbol=BTC&fiat=USD -> {"symbol":"BTC","fiat":"USD","rate":20000}.
type Client struct {
	http    *resty.Client
	breaker *apperrors.CircuitBreaker
	policy  apperrors.RetryPolicy
	cache   Cache
	fiat    string
	log     *slog.Logger
}

// New constructs a Client. cache may be nil.
func New(cfg Config, cache Cache, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Fiat == "" {
		cfg.Fiat = "USD"
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	httpClient.SetTimeout(cfg.AttemptTimeout)
	httpClient.SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		breaker: apperrors.NewCircuitBreaker(cfg.Breaker),
		policy: apperrors.RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.AttemptTimeout,
			Retryable: func(err error) bool {
				return errors.Is(err, errTransient) || errors.Is(err, context.DeadlineExceeded)
			},
		},
		cache: cache,
		fiat:  strings.ToUpper(cfg.Fiat),
		log:   log.With(slog.String("component", "rate_oracle")),
	}
}

// GetRate returns how much fiat one unit of symbol is worth.
func (c *Client) GetRate(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	if c.cache != nil {
		if rate, ok := c.cache.Get(ctx, symbol); ok {
			requestsTotal.WithLabelValues("cache", "hit").Inc()
			return rate, nil
		}
	}
	return c.lookup(ctx, symbol)
}

// Refresh fetches symbol from the oracle, bypassing the cache, and stores the result.
func (c *Client) Refresh(ctx context.Context, symbol string) (float64, error) {
	return c.lookup(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

func (c *Client) lookup(ctx context.Context, symbol string) (float64, error) {
	var rate float64
	err := c.breaker.Call(func() error {
		return apperrors.WithRetry(ctx, c.policy, func(attemptCtx context.Context) error {
			fetched, err := c.fetch(attemptCtx, symbol)
			if err != nil {
				return err
			}
			rate = fetched
			return nil
		})
	})
	if err != nil {
		requestsTotal.WithLabelValues("http", "error").Inc()
		c.log.Warn("rate lookup failed", slog.String("symbol", symbol), slog.Any("error", err))
		return 0, apperrors.NewRateUnavailable(symbol, err)
	}

	requestsTotal.WithLabelValues("http", "ok").Inc()
	if c.cache != nil {
		c.cache.Set(ctx, symbol, rate)
	}
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (float64, error) {
	var body rateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "fiat": c.fiat}).
		SetResult(&body).
		Get("/rate")
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %v", errTransient, err)
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return 0, fmt.Errorf("%w: status %d", errTransient, status)
	case status != http.StatusOK:
		return 0, fmt.Errorf("unexpected status %d", status)
	}

	if body.Rate <= 0 || math.IsNaN(body.Rate) || math.IsInf(body.Rate, 0) {
		return 0, fmt.Errorf("invalid rate %v for %s", body.Rate, symbol)
	}
	return body.Rate, nil
}
