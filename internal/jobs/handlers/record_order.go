// Package handlers processes asynq tasks.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/storefront-bot/internal/jobs"
	"github.com/Proton-105/storefront-bot/internal/payment"
)

// RecordOrderHandler writes queued orders to the persistent sink.
type RecordOrderHandler struct {
	sink payment.OrderSink
	log  *slog.Logger
}

func NewRecordOrderHandler(sink payment.OrderSink, log *slog.Logger) *RecordOrderHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RecordOrderHandler{sink: sink, log: log}
}

func (h *RecordOrderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.RecordOrderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "record order: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode order payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Order.ID == "" {
		return fmt.Errorf("order payload without id: %w", asynq.SkipRetry)
	}

	if err := h.sink.RecordOrder(ctx, payload.Order); err != nil {
		return err
	}

	h.log.InfoContext(ctx, "order persisted",
		slog.String("order_id", payload.Order.ID),
		slog.Int64("user_id", payload.Order.UserID),
	)
	return nil
}
