// Package jobs moves work that must survive restarts onto an asynq queue:
// confirmed order writes and periodic exchange-rate refreshes.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/storefront-bot/internal/payment"
)

const (
	TaskTypeRecordOrder  = "order:record"
	TaskTypeRefreshRates = "rates:refresh"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue set the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const (
	orderMaxRetry  = 10
	orderRetention = 24 * time.Hour
)

// RecordOrderPayload carries one confirmed order.
type RecordOrderPayload struct {
	Order payment.Order `json:"order"`
}

// RefreshRatesPayload lists symbols to refresh. Empty means every catalog currency.
type RefreshRatesPayload struct {
	Symbols []string `json:"symbols,omitempty"`
}

// NewRecordOrderTask builds the write task for order. The order id doubles as
// the task id so a retried enqueue never writes twice.
func NewRecordOrderTask(order payment.Order) (*asynq.Task, error) {
	payload, err := json.Marshal(RecordOrderPayload{Order: order})
	if err != nil {
		return nil, fmt.Errorf("marshal order payload: %w", err)
	}

	return asynq.NewTask(TaskTypeRecordOrder, payload,
		asynq.TaskID(order.ID),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(orderMaxRetry),
		asynq.Retention(orderRetention),
	), nil
}

// NewRefreshRatesTask builds a rate refresh task.
func NewRefreshRatesTask(symbols []string) (*asynq.Task, error) {
	payload, err := json.Marshal(RefreshRatesPayload{Symbols: symbols})
	if err != nil {
		return nil, fmt.Errorf("marshal refresh payload: %w", err)
	}

	return asynq.NewTask(TaskTypeRefreshRates, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
	), nil
}
