// Package repository persists confirmed orders in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	apperrors "github.com/Proton-105/storefront-bot/internal/errors"
	"github.com/Proton-105/storefront-bot/internal/payment"
)

const uniqueViolation = "23505"

// OrderRepository writes confirmed orders and reads simple aggregates back.
type OrderRepository struct {
	db  *sql.DB
	log *slog.Logger
}

var _ payment.OrderSink = (*OrderRepository)(nil)

// NewOrderRepository creates a new SQL-backed order repository.
func NewOrderRepository(db *sql.DB, log *slog.Logger) *OrderRepository {
	if log == nil {
		log = slog.Default()
	}
	return &OrderRepository{
		db:  db,
		log: log.With(slog.String("component", "order_repository")),
	}
}

// RecordOrder inserts order. Re-recording the same order id is a no-op.
func (r *OrderRepository) RecordOrder(ctx context.Context, order payment.Order) error {
	const query = `
		INSERT INTO orders (id, user_id, city, product, quantity, currency, amount, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.City,
		order.Product,
		order.Quantity,
		order.Currency,
		order.Amount,
		order.TotalPrice,
		order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.log.Debug("order already recorded", slog.String("order_id", order.ID))
			return nil
		}
		return apperrors.NewDatabaseError(fmt.Errorf("insert order %s: %w", order.ID, err))
	}

	r.log.Info("order recorded",
		slog.String("order_id", order.ID),
		slog.Int64("user_id", order.UserID),
		slog.String("currency", order.Currency),
	)
	return nil
}

// CountByUser returns how many orders the user has completed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM orders WHERE user_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError(fmt.Errorf("count orders for user %d: %w", userID, err))
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
