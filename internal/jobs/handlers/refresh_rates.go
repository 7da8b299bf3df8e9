package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/storefront-bot/internal/catalog"
	"github.com/Proton-105/storefront-bot/internal/jobs"
)

// Refresher re-fetches a rate and updates the cache.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (float64, error)
}

// RefreshRatesHandler keeps the rate cache warm so payment setup rarely waits on the oracle.
type RefreshRatesHandler struct {
	refresher Refresher
	catalog   catalog.Provider
	log       *slog.Logger
}

func NewRefreshRatesHandler(refresher Refresher, provider catalog.Provider, log *slog.Logger) *RefreshRatesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RefreshRatesHandler{refresher: refresher, catalog: provider, log: log}
}

func (h *RefreshRatesHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RefreshRatesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode refresh payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	symbols := payload.Symbols
	if len(symbols) == 0 {
		symbols = h.catalogSymbols()
	}

	var errs []error
	for _, symbol := range symbols {
		rate, err := h.refresher.Refresh(ctx, symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.log.DebugContext(ctx, "rate refreshed", slog.String("symbol", symbol), slog.Float64("rate", rate))
	}
	return errors.Join(errs...)
}

func (h *RefreshRatesHandler) catalogSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range h.catalog.Currencies() {
		if !seen[c.Symbol] {
			seen[c.Symbol] = true
			out = append(out, c.Symbol)
		}
	}
	return out
}
