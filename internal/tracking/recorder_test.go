package tracking

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/linktrail/linktrail/internal/metrics"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

func newTestRecorder(links *fakeLinkStore, clicks *fakeClickStore, signals *fakeSignalStore, rec metrics.Recorder) *ClickRecorder {
	cookies := NewCookieWriter(time.Hour, false)
	return NewClickRecorder(links, clicks, signals, nil, cookies, time.Minute, rec, testLogger())
}

func TestClickRecorder_HappyPath(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	links := newFakeLinkStore(link)
	clicks := newFakeClickStore()
	signals := newFakeSignalStore()
	rec := metrics.NewInMemory()

	r := newTestRecorder(links, clicks, signals, rec)

	decision, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: chromeUA,
		Referrer:  "https://news.example.org/article",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Destination carries the link's UTM params and the cache buster.
	parsed, err := url.Parse(decision.Destination)
	if err != nil {
		t.Fatalf("parse destination: %v", err)
	}
	q := parsed.Query()
	if q.Get("utm_source") != "newsletter" {
		t.Errorf("utm_source = %q, want newsletter", q.Get("utm_source"))
	}
	if q.Get("_lt") == "" {
		t.Error("cache buster missing from destination")
	}
	if decision.ClientSide {
		t.Error("desktop chrome should get an HTTP redirect")
	}

	if len(clicks.inserted) != 1 {
		t.Fatalf("clicks inserted = %d, want 1", len(clicks.inserted))
	}
	click := clicks.inserted[0]
	if click.LinkID != "link-1" || click.IsBot {
		t.Errorf("unexpected click row %+v", click)
	}
	if click.SessionID == "" {
		t.Error("click should carry a session id")
	}

	if links.clickIncrements["link-1"] != 1 {
		t.Errorf("click counter increments = %d, want 1", links.clickIncrements["link-1"])
	}

	// Session, IP and fingerprint signals seeded.
	if len(signals.records) != 3 {
		t.Errorf("signals seeded = %d, want 3", len(signals.records))
	}

	if len(decision.Cookies) == 0 {
		t.Error("visit cookies missing")
	}

	if snap := rec.Snapshot(); snap.ClicksRecorded != 1 {
		t.Errorf("clicks recorded metric = %d, want 1", snap.ClicksRecorded)
	}
}

func TestClickRecorder_UnknownCode(t *testing.T) {
	r := newTestRecorder(newFakeLinkStore(), newFakeClickStore(), newFakeSignalStore(), metrics.NewNoop())

	_, err := r.Handle(context.Background(), VisitRequest{ShortCode: "nosuch", UserAgent: chromeUA})
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("error = %v, want ErrLinkNotFound", err)
	}
}

func TestClickRecorder_InactiveLink(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	link.IsActive = false
	r := newTestRecorder(newFakeLinkStore(link), newFakeClickStore(), newFakeSignalStore(), metrics.NewNoop())

	_, err := r.Handle(context.Background(), VisitRequest{ShortCode: "abc123", UserAgent: chromeUA})
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("error = %v, want ErrLinkNotFound", err)
	}
}

func TestClickRecorder_BotGetsAuditRowOnly(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	links := newFakeLinkStore(link)
	clicks := newFakeClickStore()
	signals := newFakeSignalStore()

	r := newTestRecorder(links, clicks, signals, metrics.NewNoop())

	decision, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1)",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	// Bots still get redirected, and an audit row is written.
	if decision.Destination == "" {
		t.Error("bot should still get a destination")
	}
	if len(clicks.inserted) != 1 || !clicks.inserted[0].IsBot {
		t.Fatalf("expected one bot audit row, got %+v", clicks.inserted)
	}

	// But no counters, no signals, no cookies.
	if links.clickIncrements["link-1"] != 0 {
		t.Error("bot click must not increment counters")
	}
	if len(signals.records) != 0 {
		t.Error("bot click must not seed signals")
	}
	if len(decision.Cookies) != 0 {
		t.Error("bot click must not set cookies")
	}
}

func TestClickRecorder_Dedup(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	links := newFakeLinkStore(link)
	clicks := newFakeClickStore()
	clicks.recentClick = true
	rec := metrics.NewInMemory()

	r := newTestRecorder(links, clicks, newFakeSignalStore(), rec)

	decision, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: chromeUA,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if decision.Destination == "" {
		t.Error("deduplicated visit still redirects")
	}
	if len(clicks.inserted) != 0 {
		t.Error("deduplicated visit must not write a click")
	}
	if links.clickIncrements["link-1"] != 0 {
		t.Error("deduplicated visit must not increment counters")
	}
	if snap := rec.Snapshot(); snap.ClicksDeduplicated != 1 {
		t.Errorf("dedup metric = %d, want 1", snap.ClicksDeduplicated)
	}
}

func TestClickRecorder_DedupCheckFailureRecordsAnyway(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	clicks := newFakeClickStore()
	clicks.recentErr = errors.New("clicks table on fire")

	r := newTestRecorder(newFakeLinkStore(link), clicks, newFakeSignalStore(), metrics.NewNoop())

	if _, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: chromeUA,
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(clicks.inserted) != 1 {
		t.Error("failed dedup check should fall back to recording the click")
	}
}

func TestClickRecorder_InsertFailureIsFatal(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	clicks := newFakeClickStore()
	clicks.insertErr = errors.New("connection refused")

	r := newTestRecorder(newFakeLinkStore(link), clicks, newFakeSignalStore(), metrics.NewNoop())

	_, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: chromeUA,
	})
	if err == nil {
		t.Fatal("click insert failure must fail the request")
	}
}

func TestClickRecorder_SignalFailureDoesNotBlock(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	signals := newFakeSignalStore()
	signals.putErr = errors.New("redis down")

	r := newTestRecorder(newFakeLinkStore(link), newFakeClickStore(), signals, metrics.NewNoop())

	decision, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: chromeUA,
	})
	if err != nil {
		t.Fatalf("signal failures must not fail the redirect: %v", err)
	}
	if decision.Destination == "" {
		t.Error("redirect should proceed despite signal failures")
	}
}

func TestClickRecorder_InAppBrowser(t *testing.T) {
	link := testLink("link-1", "abc123", "newsletter")
	r := newTestRecorder(newFakeLinkStore(link), newFakeClickStore(), newFakeSignalStore(), metrics.NewNoop())

	decision, err := r.Handle(context.Background(), VisitRequest{
		ShortCode: "abc123",
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) [FBAN/FBIOS;FBAV/440.0.0]",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !decision.ClientSide {
		t.Error("in-app browser should get a client-side redirect")
	}
	if !strings.Contains(decision.Destination, "utm_source=newsletter") {
		t.Errorf("destination %q missing UTM params", decision.Destination)
	}
}
