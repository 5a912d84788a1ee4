package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ConversionRecord is the persisted idempotency guard for an order. The
// unique constraint on order_id makes check-and-set atomic: the same order
// may trigger conversion tracking from several lifecycle events, arriving
// concurrently or minutes apart, and only the first insert wins.
type ConversionRecord struct {
	OrderID    string
	LinkID     string
	ClickID    string
	OrderTotal decimal.Decimal
	EmailHash  string
	CreatedAt  time.Time
}

// InsertConversion records the idempotency guard for orderID. Returns false
// without error when the order was already recorded.
func (r *Repository) InsertConversion(ctx context.Context, rec *ConversionRecord) (bool, error) {
	query := `
		INSERT INTO conversions (order_id, link_id, click_id, order_total, email_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (order_id) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		rec.OrderID,
		rec.LinkID,
		nullableString(rec.ClickID),
		rec.OrderTotal.String(),
		nullableString(rec.EmailHash),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert conversion: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// ConversionExists reports whether orderID already carries the guard flag.
func (r *Repository) ConversionExists(ctx context.Context, orderID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM conversions WHERE order_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check conversion: %w", err)
	}

	return exists, nil
}
