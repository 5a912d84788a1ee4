package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/model"
)

// Common errors for link repository operations.
var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrCodeExists    = errors.New("short code already exists")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// LinkFilter defines filters for listing links.
type LinkFilter struct {
	Source     string
	Campaign   string
	ActiveOnly bool
}

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

const linkColumns = `id, short_code, destination, utm_source, utm_medium, utm_campaign, utm_term,
		created_by, is_active, clicks, conversions, revenue::text, created_at, updated_at`

// CreateLink inserts a new link into the database.
// Short codes are unique across active and inactive links alike.
func (r *Repository) CreateLink(ctx context.Context, link *model.Link) error {
	query := `
		INSERT INTO links (id, short_code, destination, utm_source, utm_medium, utm_campaign, utm_term,
			created_by, is_active, clicks, conversions, revenue, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		link.ID,
		link.ShortCode,
		link.Destination,
		link.Utm.Source,
		link.Utm.Medium,
		link.Utm.Campaign,
		link.Utm.Term,
		link.CreatedBy,
		link.IsActive,
		link.Clicks,
		link.Conversions,
		link.Revenue.String(),
		link.CreatedAt,
		link.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// GetLinkByID retrieves a link by its ID, active or not.
func (r *Repository) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by ID: %w", err)
	}

	return link, nil
}

// GetLinkByCode retrieves a link by its short code.
// Only active links resolve; this is the hot path for redirects.
func (r *Repository) GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1 AND is_active = TRUE`

	link, err := scanLink(r.pool.QueryRow(ctx, query, shortCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by short code: %w", err)
	}

	return link, nil
}

// IsLinkActive reports whether the given link id refers to an active link.
// Attribution hints pointing at deactivated links are treated as absent.
func (r *Repository) IsLinkActive(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE id = $1 AND is_active = TRUE)`

	var active bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to check link active: %w", err)
	}

	return active, nil
}

// ListLinks retrieves a paginated list of links, newest first.
func (r *Repository) ListLinks(ctx context.Context, filter LinkFilter, cursor string, limit int) ([]*model.Link, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `SELECT ` + linkColumns + ` FROM links WHERE 1=1`
	args := []any{}
	argIndex := 1

	if filter.ActiveOnly {
		query += " AND is_active = TRUE"
	}
	if filter.Source != "" {
		query += fmt.Sprintf(" AND utm_source = $%d", argIndex)
		args = append(args, filter.Source)
		argIndex++
	}
	if filter.Campaign != "" {
		query += fmt.Sprintf(" AND utm_campaign = $%d", argIndex)
		args = append(args, filter.Campaign)
		argIndex++
	}
	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating links: %w", err)
	}

	var nextCursor string
	if len(links) > limit {
		links = links[:limit]
		last := links[len(links)-1]
		nextCursor = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return links, nextCursor, nil
}

// UpdateLink updates a link's mutable fields. Short code, counters and
// created_at are never touched.
func (r *Repository) UpdateLink(ctx context.Context, link *model.Link) error {
	query := `
		UPDATE links
		SET destination = $2, utm_source = $3, utm_medium = $4, utm_campaign = $5, utm_term = $6,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		link.ID,
		link.Destination,
		link.Utm.Source,
		link.Utm.Medium,
		link.Utm.Campaign,
		link.Utm.Term,
	)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// DeactivateLink soft-deletes a link. Idempotent: deactivating an already
// inactive link is not an error.
func (r *Repository) DeactivateLink(ctx context.Context, id string) error {
	query := `UPDATE links SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// BulkDeactivate soft-deletes every link in ids. Returns the number of rows
// actually changed; unknown ids are skipped silently.
func (r *Repository) BulkDeactivate(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `UPDATE links SET is_active = FALSE, updated_at = NOW() WHERE id = ANY($1)`

	result, err := r.pool.Exec(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to bulk deactivate links: %w", err)
	}

	return result.RowsAffected(), nil
}

// IncrementClicks atomically increments the click counter for a link.
// Concurrent increments must never lose updates, so this is a single SQL
// increment rather than read-modify-write.
func (r *Repository) IncrementClicks(ctx context.Context, id string) error {
	query := `UPDATE links SET clicks = clicks + 1 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}

	return nil
}

// IncrementConversion atomically increments the conversion counter and adds
// amount to accumulated revenue in a single update.
func (r *Repository) IncrementConversion(ctx context.Context, id string, amount decimal.Decimal) error {
	query := `UPDATE links SET conversions = conversions + 1, revenue = revenue + $2::numeric WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, amount.String()); err != nil {
		return fmt.Errorf("failed to increment conversion: %w", err)
	}

	return nil
}

// LatestActiveLinkByUtm returns the most recently created active link with
// the given utm_source, further narrowed by campaign when non-empty. Used as
// the last-resort attribution heuristic; ties break on recency then id.
func (r *Repository) LatestActiveLinkByUtm(ctx context.Context, source, campaign string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE is_active = TRUE AND utm_source = $1`
	args := []any{source}

	if campaign != "" {
		query += ` AND utm_campaign = $2`
		args = append(args, campaign)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	link, err := scanLink(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to find link by utm: %w", err)
	}

	return link, nil
}

// ShortCodeExists checks if a short code was ever issued, including to
// deactivated links. Codes are never reused.
func (r *Repository) ShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, shortCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}

	return exists, nil
}

// scanLink scans a single row into a Link model.
func scanLink(row pgx.Row) (*model.Link, error) {
	var link model.Link
	var revenue string

	err := row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.Destination,
		&link.Utm.Source,
		&link.Utm.Medium,
		&link.Utm.Campaign,
		&link.Utm.Term,
		&link.CreatedBy,
		&link.IsActive,
		&link.Clicks,
		&link.Conversions,
		&revenue,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Revenue, err = decimal.NewFromString(revenue)
	if err != nil {
		return nil, fmt.Errorf("parse revenue %q: %w", revenue, err)
	}

	return &link, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	// PostgreSQL error code 23505 is unique_violation
	return err != nil && (contains(err.Error(), "23505") || contains(err.Error(), "unique"))
}

// contains checks if a string contains a substring.
func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
