// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates all tables from the migrations directory.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	names := []string{"000003_conversions", "000002_clicks", "000001_links"}
	for _, name := range names {
		if err := applyMigration(ctx, pool, root, name+".down.sql"); err != nil {
			return err
		}
	}
	for i := len(names) - 1; i >= 0; i-- {
		if err := applyMigration(ctx, pool, root, names[i]+".up.sql"); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, root, filename string) error {
	sql, err := os.ReadFile(filepath.Join(root, "migrations", filename))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filename, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", filename, err)
	}
	return nil
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestLink creates a test link with sensible defaults.
func NewTestLink(t testing.TB, shortCode string) *model.Link {
	t.Helper()
	now := time.Now().UTC()
	link := &model.Link{
		ID:          ulid.Make().String(),
		ShortCode:   shortCode,
		Destination: "https://shop.example.com/product/" + shortCode,
		CreatedBy:   "test-user",
		IsActive:    true,
		Revenue:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	link.Utm.Source = "newsletter"
	link.Utm.Campaign = "spring-sale"
	return link
}

// NewTestClick creates a test click row attached to the given link.
func NewTestClick(t testing.TB, linkID string) *model.Click {
	t.Helper()
	now := time.Now().UTC()
	return &model.Click{
		ID:         ulid.Make().String(),
		LinkID:     linkID,
		OccurredAt: now,
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0",
		DeviceType: model.DeviceDesktop,
		SessionID:  UniqueID("sess"),
		CreatedAt:  now,
	}
}

// UniqueShortCode generates a unique short code for tests.
func UniqueShortCode(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1000000)
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
