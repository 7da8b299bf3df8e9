package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/storefront-bot/internal/payment"
	appredis "github.com/Proton-105/storefront-bot/pkg/redis"
)

// RedisOpt converts the shared redis settings into asynq connection options.
func RedisOpt(cfg appredis.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
}

// Enqueuer is the subset of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueuer
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) Close() error {
	return m.client.Close()
}

// OrderQueue is a payment.OrderSink that hands orders to the worker.
type OrderQueue struct {
	queue Enqueuer
	log   *slog.Logger
}

var _ payment.OrderSink = (*OrderQueue)(nil)

// NewOrderQueue wraps queue.
func NewOrderQueue(queue Enqueuer, log *slog.Logger) *OrderQueue {
	if log == nil {
		log = slog.Default()
	}
	return &OrderQueue{queue: queue, log: log.With(slog.String("component", "order_queue"))}
}

// RecordOrder enqueues order. An order already queued counts as success.
func (q *OrderQueue) RecordOrder(ctx context.Context, order payment.Order) error {
	task, err := NewRecordOrderTask(order)
	if err != nil {
		return err
	}

	info, err := q.queue.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		q.log.Debug("order already queued", slog.String("order_id", order.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue order %s: %w", order.ID, err)
	}

	q.log.Debug("order queued", slog.String("order_id", order.ID), slog.String("queue", info.Queue))
	return nil
}
