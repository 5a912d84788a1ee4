package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/testutil"
)

// newTestRepository connects to the database named by DATABASE_URL, resets
// the schema and serializes against other DB tests. Skips when unset.
func newTestRepository(t *testing.T, ctx context.Context) *Repository {
	t.Helper()

	databaseURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	t.Cleanup(func() {
		if err := unlock(); err != nil {
			t.Errorf("release lock: %v", err)
		}
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return repo
}

func TestRepository_CreateAndGetLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("cg"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	byID, err := repo.GetLinkByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.ShortCode != link.ShortCode || byID.Utm.Source != link.Utm.Source {
		t.Errorf("loaded link mismatch: %+v", byID)
	}
	if !byID.Revenue.IsZero() {
		t.Errorf("new link revenue = %s, want 0", byID.Revenue)
	}

	byCode, err := repo.GetLinkByCode(ctx, link.ShortCode)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if byCode.ID != link.ID {
		t.Errorf("get by code returned %s, want %s", byCode.ID, link.ID)
	}

	duplicate := testutil.NewTestLink(t, link.ShortCode)
	if err := repo.CreateLink(ctx, duplicate); !errors.Is(err, ErrCodeExists) {
		t.Fatalf("duplicate code error = %v, want ErrCodeExists", err)
	}
}

func TestRepository_DeactivatedLinkHidesFromRedirects(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("da"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	if err := repo.DeactivateLink(ctx, link.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Redirect lookup misses, direct lookup still works.
	if _, err := repo.GetLinkByCode(ctx, link.ShortCode); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("get by code after deactivation error = %v, want ErrLinkNotFound", err)
	}
	byID, err := repo.GetLinkByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.IsActive {
		t.Error("link should be inactive")
	}

	// Codes stay taken after deactivation.
	exists, err := repo.ShortCodeExists(ctx, link.ShortCode)
	if err != nil {
		t.Fatalf("short code exists: %v", err)
	}
	if !exists {
		t.Error("deactivated link must keep its short code reserved")
	}

	active, err := repo.IsLinkActive(ctx, link.ID)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if active {
		t.Error("IsLinkActive should report false")
	}
}

func TestRepository_BulkDeactivate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	var ids []string
	for i := 0; i < 3; i++ {
		link := testutil.NewTestLink(t, testutil.UniqueShortCode("bd"))
		if err := repo.CreateLink(ctx, link); err != nil {
			t.Fatalf("create link: %v", err)
		}
		ids = append(ids, link.ID)
		time.Sleep(time.Millisecond) // distinct created_at for stable ordering
	}

	count, err := repo.BulkDeactivate(ctx, []string{ids[0], ids[1], "no-such-id"})
	if err != nil {
		t.Fatalf("bulk deactivate: %v", err)
	}
	if count != 2 {
		t.Errorf("deactivated = %d, want 2", count)
	}

	remaining, _, err := repo.ListLinks(ctx, LinkFilter{ActiveOnly: true}, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != ids[2] {
		t.Errorf("active remaining = %+v, want only %s", remaining, ids[2])
	}
}

func TestRepository_ListLinksPagination(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	for i := 0; i < 5; i++ {
		link := testutil.NewTestLink(t, testutil.UniqueShortCode("pg"))
		if err := repo.CreateLink(ctx, link); err != nil {
			t.Fatalf("create link: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	page1, cursor, err := repo.ListLinks(ctx, LinkFilter{}, "", 3)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 3 || cursor == "" {
		t.Fatalf("page 1 = %d links, cursor %q", len(page1), cursor)
	}

	page2, cursor2, err := repo.ListLinks(ctx, LinkFilter{}, cursor, 3)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 2 || cursor2 != "" {
		t.Fatalf("page 2 = %d links, cursor %q, want 2 and empty", len(page2), cursor2)
	}

	// Newest first, no overlap between pages.
	seen := map[string]bool{}
	for _, l := range append(page1, page2...) {
		if seen[l.ID] {
			t.Fatalf("link %s appeared twice", l.ID)
		}
		seen[l.ID] = true
	}

	if _, _, err := repo.ListLinks(ctx, LinkFilter{}, "garbage-cursor", 3); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("invalid cursor error = %v, want ErrInvalidCursor", err)
	}
}

func TestRepository_Counters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("ct"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.IncrementClicks(ctx, link.ID); err != nil {
			t.Fatalf("increment clicks: %v", err)
		}
	}
	if err := repo.IncrementConversion(ctx, link.ID, decimal.RequireFromString("19.99")); err != nil {
		t.Fatalf("increment conversion: %v", err)
	}
	if err := repo.IncrementConversion(ctx, link.ID, decimal.RequireFromString("0.01")); err != nil {
		t.Fatalf("increment conversion: %v", err)
	}

	loaded, err := repo.GetLinkByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Clicks != 3 {
		t.Errorf("clicks = %d, want 3", loaded.Clicks)
	}
	if loaded.Conversions != 2 {
		t.Errorf("conversions = %d, want 2", loaded.Conversions)
	}
	if !loaded.Revenue.Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("revenue = %s, want 20.00", loaded.Revenue)
	}
}

// Counter increments happen inside the storage layer, so a burst of
// concurrent calls must not lose updates.
func TestRepository_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("cc"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	const (
		clickCalls      = 25
		conversionCalls = 10
	)
	amount := decimal.RequireFromString("1.50")

	var wg sync.WaitGroup
	errs := make(chan error, clickCalls+conversionCalls)

	for i := 0; i < clickCalls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementClicks(ctx, link.ID)
		}()
	}
	for i := 0; i < conversionCalls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementConversion(ctx, link.ID, amount)
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	loaded, err := repo.GetLinkByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Clicks != clickCalls {
		t.Errorf("clicks = %d, want %d", loaded.Clicks, clickCalls)
	}
	if loaded.Conversions != conversionCalls {
		t.Errorf("conversions = %d, want %d", loaded.Conversions, conversionCalls)
	}
	if want := decimal.RequireFromString("15.00"); !loaded.Revenue.Equal(want) {
		t.Errorf("revenue = %s, want %s", loaded.Revenue, want)
	}
}

func TestRepository_ConversionGuard(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("gd"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	rec := &ConversionRecord{
		OrderID:    "order-1001",
		LinkID:     link.ID,
		OrderTotal: decimal.RequireFromString("49.90"),
	}

	inserted, err := repo.InsertConversion(ctx, rec)
	if err != nil {
		t.Fatalf("insert conversion: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should win")
	}

	again, err := repo.InsertConversion(ctx, rec)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if again {
		t.Fatal("second insert for the same order must be a no-op")
	}

	exists, err := repo.ConversionExists(ctx, "order-1001")
	if err != nil {
		t.Fatalf("conversion exists: %v", err)
	}
	if !exists {
		t.Error("guard row should exist")
	}
}

func TestRepository_ClickLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueShortCode("cl"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	click := testutil.NewTestClick(t, link.ID)
	if err := repo.InsertClick(ctx, click); err != nil {
		t.Fatalf("insert click: %v", err)
	}

	recent, err := repo.HasRecentClick(ctx, link.ID, click.IPAddress, 5*time.Minute)
	if err != nil {
		t.Fatalf("has recent click: %v", err)
	}
	if !recent {
		t.Error("fresh click should count as recent")
	}

	latest, err := repo.LatestUnconvertedClick(ctx, click.SessionID, link.ID)
	if err != nil {
		t.Fatalf("latest unconverted: %v", err)
	}
	if latest.ID != click.ID {
		t.Errorf("latest unconverted = %s, want %s", latest.ID, click.ID)
	}

	flipped, err := repo.MarkConverted(ctx, click.ID, "order-77")
	if err != nil {
		t.Fatalf("mark converted: %v", err)
	}
	if !flipped {
		t.Fatal("first conversion should flip the click")
	}

	flippedAgain, err := repo.MarkConverted(ctx, click.ID, "order-88")
	if err != nil {
		t.Fatalf("mark converted again: %v", err)
	}
	if flippedAgain {
		t.Fatal("converted click must not flip twice")
	}

	loaded, err := repo.GetClickByID(ctx, click.ID)
	if err != nil {
		t.Fatalf("get click: %v", err)
	}
	if loaded.OrderID != "order-77" {
		t.Errorf("order id = %q, first order must keep the click", loaded.OrderID)
	}

	// Retention sweep removes it once past the cutoff.
	n, err := repo.DeleteClicksOlderThan(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("delete old clicks: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
