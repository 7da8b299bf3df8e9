// Package verifier checks wallet balances to decide whether a payment arrived.
package verifier

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// tolerance absorbs float noise when comparing the observed balance.
const tolerance = 1e-9

type balanceResponse struct {
	Wallet  string  `json:"wallet"`
	Symbol  string  `json:"symbol"`
	Balance float64 `json:"balance"`
}

// Client queries GET {base}/balance?wallet=..&symbol=.. and treats a balance at
// or above the expected amount as paid.
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

// New constructs a Client with a per-request timeout.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(strings.TrimRight(baseURL, "/"))
	httpClient.SetTimeout(timeout)
	httpClient.SetHeader("Accept", "application/json")

	return &Client{
		http: httpClient,
		log:  log.With(slog.String("component", "payment_verifier")),
	}
}

// IsPaid never returns an error: anything other than a conclusive balance reads as not paid.
func (c *Client) IsPaid(ctx context.Context, wallet, symbol string, amount float64) bool {
	var body balanceResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"wallet": wallet, "symbol": symbol}).
		SetResult(&body).
		Get("/balance")
	if err != nil {
		c.log.Warn("balance check failed", slog.String("symbol", symbol), slog.Any("error", err))
		return false
	}
	if resp.StatusCode() != http.StatusOK {
		c.log.Warn("balance check rejected", slog.String("symbol", symbol), slog.Int("status", resp.StatusCode()))
		return false
	}

	paid := body.Balance+tolerance >= amount
	c.log.Debug("balance checked",
		slog.String("symbol", symbol),
		slog.Float64("balance", body.Balance),
		slog.Float64("expected", amount),
		slog.Bool("paid", paid),
	)
	return paid
}
