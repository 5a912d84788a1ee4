package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StatsFilter scopes analytics queries. A zero LinkID means all links.
type StatsFilter struct {
	LinkID string
	From   time.Time
	To     time.Time
}

// StatsTotals is the aggregate roll-up over a date range. Bot audit rows are
// excluded everywhere.
type StatsTotals struct {
	Clicks         int64
	Conversions    int64
	Revenue        decimal.Decimal
	ConversionRate float64
	AvgOrderValue  decimal.Decimal
}

// DailyBucket is one day of the time series.
type DailyBucket struct {
	Date        time.Time
	Clicks      int64
	Conversions int64
}

// BreakdownBucket is one group of a breakdown query (by source, by device).
type BreakdownBucket struct {
	Key         string
	Clicks      int64
	Conversions int64
}

// GetTotals computes clicks, conversions, revenue, conversion rate and
// average order value over the filtered range. Revenue comes from the
// conversion guard rows so it follows the same date range as the clicks.
func (r *Repository) GetTotals(ctx context.Context, filter StatsFilter) (*StatsTotals, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE c.converted),
			COALESCE(SUM(v.order_total) FILTER (WHERE c.converted), 0)::text
		FROM clicks c
		LEFT JOIN conversions v ON v.order_id = c.order_id
		WHERE c.is_bot = FALSE AND c.occurred_at >= $1 AND c.occurred_at < $2
	`
	args := []any{filter.From, filter.To}
	if filter.LinkID != "" {
		query += " AND c.link_id = $3"
		args = append(args, filter.LinkID)
	}

	var totals StatsTotals
	var revenue string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&totals.Clicks, &totals.Conversions, &revenue); err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	var err error
	totals.Revenue, err = decimal.NewFromString(revenue)
	if err != nil {
		return nil, fmt.Errorf("parse revenue %q: %w", revenue, err)
	}

	if totals.Clicks > 0 {
		totals.ConversionRate = float64(totals.Conversions) / float64(totals.Clicks) * 100
	}
	if totals.Conversions > 0 {
		totals.AvgOrderValue = totals.Revenue.Div(decimal.NewFromInt(totals.Conversions))
	}

	return &totals, nil
}

// GetDailySeries returns per-day click and conversion counts, oldest first.
func (r *Repository) GetDailySeries(ctx context.Context, filter StatsFilter) ([]DailyBucket, error) {
	query := `
		SELECT date_trunc('day', occurred_at) AS day,
			COUNT(*),
			COUNT(*) FILTER (WHERE converted)
		FROM clicks
		WHERE is_bot = FALSE AND occurred_at >= $1 AND occurred_at < $2
	`
	args := []any{filter.From, filter.To}
	if filter.LinkID != "" {
		query += " AND link_id = $3"
		args = append(args, filter.LinkID)
	}
	query += " GROUP BY day ORDER BY day ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily series: %w", err)
	}
	defer rows.Close()

	var buckets []DailyBucket
	for rows.Next() {
		var b DailyBucket
		if err := rows.Scan(&b.Date, &b.Clicks, &b.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan daily bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

// GetSourceBreakdown groups clicks by the owning link's utm_source.
func (r *Repository) GetSourceBreakdown(ctx context.Context, filter StatsFilter) ([]BreakdownBucket, error) {
	query := `
		SELECT l.utm_source,
			COUNT(*),
			COUNT(*) FILTER (WHERE c.converted)
		FROM clicks c
		JOIN links l ON l.id = c.link_id
		WHERE c.is_bot = FALSE AND c.occurred_at >= $1 AND c.occurred_at < $2
	`
	args := []any{filter.From, filter.To}
	if filter.LinkID != "" {
		query += " AND c.link_id = $3"
		args = append(args, filter.LinkID)
	}
	query += " GROUP BY l.utm_source ORDER BY COUNT(*) DESC"

	return r.queryBreakdown(ctx, query, args)
}

// GetDeviceBreakdown groups clicks by device type.
func (r *Repository) GetDeviceBreakdown(ctx context.Context, filter StatsFilter) ([]BreakdownBucket, error) {
	query := `
		SELECT device_type,
			COUNT(*),
			COUNT(*) FILTER (WHERE converted)
		FROM clicks
		WHERE is_bot = FALSE AND occurred_at >= $1 AND occurred_at < $2
	`
	args := []any{filter.From, filter.To}
	if filter.LinkID != "" {
		query += " AND link_id = $3"
		args = append(args, filter.LinkID)
	}
	query += " GROUP BY device_type ORDER BY COUNT(*) DESC"

	return r.queryBreakdown(ctx, query, args)
}

func (r *Repository) queryBreakdown(ctx context.Context, query string, args []any) ([]BreakdownBucket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query breakdown: %w", err)
	}
	defer rows.Close()

	var buckets []BreakdownBucket
	for rows.Next() {
		var b BreakdownBucket
		if err := rows.Scan(&b.Key, &b.Clicks, &b.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}
