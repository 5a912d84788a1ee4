package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/linktrail/linktrail/internal/model"
)

// Common errors for click repository operations.
var (
	ErrClickNotFound = errors.New("click not found")
)

const clickColumns = `id, link_id, occurred_at, ip_address, user_agent, referrer, page,
		device_type, browser, os, session_id, is_bot, converted, order_id, country_code, city, created_at`

// InsertClick persists a click row. This is the primary write of the
// redirect path: failure here is fatal to the request.
func (r *Repository) InsertClick(ctx context.Context, click *model.Click) error {
	query := `
		INSERT INTO clicks (id, link_id, occurred_at, ip_address, user_agent, referrer, page,
			device_type, browser, os, session_id, is_bot, converted, order_id, country_code, city, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
	`

	_, err := r.pool.Exec(ctx, query,
		click.ID,
		click.LinkID,
		click.OccurredAt,
		click.IPAddress,
		nullableString(click.UserAgent),
		nullableString(click.Referrer),
		nullableString(click.Page),
		string(click.DeviceType),
		nullableString(click.Browser),
		nullableString(click.OS),
		click.SessionID,
		click.IsBot,
		click.Converted,
		nullableString(click.OrderID),
		nullableString(click.CountryCode),
		nullableString(click.City),
	)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return nil
}

// HasRecentClick reports whether a click from ip on linkID exists within the
// given window. Best-effort dedup: no unique constraint backs this, two
// near-simultaneous requests may both pass.
func (r *Repository) HasRecentClick(ctx context.Context, linkID, ip string, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM clicks
			WHERE link_id = $1 AND ip_address = $2 AND occurred_at > $3
		)
	`

	var exists bool
	cutoff := time.Now().UTC().Add(-window)
	if err := r.pool.QueryRow(ctx, query, linkID, ip, cutoff).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check recent click: %w", err)
	}

	return exists, nil
}

// GetClickByID retrieves a click by id.
func (r *Repository) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	query := `SELECT ` + clickColumns + ` FROM clicks WHERE id = $1`

	click, err := scanClick(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClickNotFound
		}
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	return click, nil
}

// LatestUnconvertedClick returns the most recent unconverted click matching
// the session and link, used to pick the conversion target when the request
// carries no click id.
func (r *Repository) LatestUnconvertedClick(ctx context.Context, sessionID, linkID string) (*model.Click, error) {
	query := `
		SELECT ` + clickColumns + `
		FROM clicks
		WHERE session_id = $1 AND link_id = $2 AND converted = FALSE
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1
	`

	click, err := scanClick(r.pool.QueryRow(ctx, query, sessionID, linkID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClickNotFound
		}
		return nil, fmt.Errorf("failed to find unconverted click: %w", err)
	}

	return click, nil
}

// MarkConverted flips a click's converted flag and attaches the order id.
// The transition is one-way: a click already converted is left untouched and
// the call reports false.
func (r *Repository) MarkConverted(ctx context.Context, clickID, orderID string) (bool, error) {
	query := `
		UPDATE clicks
		SET converted = TRUE, order_id = $2
		WHERE id = $1 AND converted = FALSE
	`

	result, err := r.pool.Exec(ctx, query, clickID, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to mark click converted: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// DeleteClicksOlderThan removes clicks beyond the retention window.
// Delete-only, never touches counters, safe to run beside live traffic.
func (r *Repository) DeleteClicksOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM clicks WHERE occurred_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old clicks: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteOrphanedClicks removes clicks whose link is gone or deactivated.
// Retired links already fold their totals into the link counters, so the raw
// rows only cost storage.
func (r *Repository) DeleteOrphanedClicks(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM clicks
		WHERE NOT EXISTS (
			SELECT 1 FROM links
			WHERE links.id = clicks.link_id AND links.is_active
		)
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned clicks: %w", err)
	}

	return result.RowsAffected(), nil
}

// ExportFilter narrows the click export.
type ExportFilter struct {
	LinkID string
	From   *time.Time
	To     *time.Time
}

// ListClicksForExport returns export rows joined with the owning link's
// utm_source, ordered oldest first for stable dumps.
func (r *Repository) ListClicksForExport(ctx context.Context, filter ExportFilter) ([]model.ClickExportRow, error) {
	query := `
		SELECT c.occurred_at,
			COALESCE(c.page, ''),
			COALESCE(c.country_code, ''),
			COALESCE(c.city, ''),
			c.device_type,
			COALESCE(c.browser, ''),
			COALESCE(c.os, ''),
			l.utm_source,
			COALESCE(c.referrer, '')
		FROM clicks c
		JOIN links l ON l.id = c.link_id
		WHERE 1=1
	`
	args := []any{}
	argIndex := 1

	if filter.LinkID != "" {
		query += fmt.Sprintf(" AND c.link_id = $%d", argIndex)
		args = append(args, filter.LinkID)
		argIndex++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND c.occurred_at >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND c.occurred_at < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}

	query += " ORDER BY c.occurred_at ASC, c.id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query export rows: %w", err)
	}
	defer rows.Close()

	var out []model.ClickExportRow
	for rows.Next() {
		var row model.ClickExportRow
		if err := rows.Scan(
			&row.Timestamp,
			&row.Page,
			&row.Country,
			&row.City,
			&row.Device,
			&row.Browser,
			&row.OS,
			&row.Source,
			&row.Referrer,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export row: %w", err)
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

// scanClick scans a single row into a Click model.
func scanClick(row pgx.Row) (*model.Click, error) {
	var click model.Click
	var userAgent, referrer, page, browser, osName, orderID, country, city *string
	var device string

	err := row.Scan(
		&click.ID,
		&click.LinkID,
		&click.OccurredAt,
		&click.IPAddress,
		&userAgent,
		&referrer,
		&page,
		&device,
		&browser,
		&osName,
		&click.SessionID,
		&click.IsBot,
		&click.Converted,
		&orderID,
		&country,
		&city,
		&click.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	click.DeviceType = model.DeviceType(device)
	click.UserAgent = deref(userAgent)
	click.Referrer = deref(referrer)
	click.Page = deref(page)
	click.Browser = deref(browser)
	click.OS = deref(osName)
	click.OrderID = deref(orderID)
	click.CountryCode = deref(country)
	click.City = deref(city)

	return &click, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
