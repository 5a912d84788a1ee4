package handler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the repository and signal store,
// implementing the narrow interfaces the tracking pipeline needs.
type memStore struct {
	links       map[string]*model.Link // by id
	codes       map[string]*model.Link // by short code
	clicks      map[string]*model.Click
	latestSess  map[string]*model.Click
	orders      map[string]bool
	signals     map[string]*model.AttributionRecord
	clickCount  map[string]int
	convCount   map[string]int
	revenue     map[string]decimal.Decimal
	recentClick bool
}

func newMemStore(links ...*model.Link) *memStore {
	s := &memStore{
		links:      make(map[string]*model.Link),
		codes:      make(map[string]*model.Link),
		clicks:     make(map[string]*model.Click),
		latestSess: make(map[string]*model.Click),
		orders:     make(map[string]bool),
		signals:    make(map[string]*model.AttributionRecord),
		clickCount: make(map[string]int),
		convCount:  make(map[string]int),
		revenue:    make(map[string]decimal.Decimal),
	}
	for _, l := range links {
		s.links[l.ID] = l
		s.codes[l.ShortCode] = l
	}
	return s
}

func (s *memStore) GetLinkByCode(ctx context.Context, code string) (*model.Link, error) {
	link, ok := s.codes[code]
	if !ok || !link.IsActive {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (s *memStore) IsLinkActive(ctx context.Context, id string) (bool, error) {
	link, ok := s.links[id]
	return ok && link.IsActive, nil
}

func (s *memStore) IncrementClicks(ctx context.Context, id string) error {
	s.clickCount[id]++
	return nil
}

func (s *memStore) IncrementConversion(ctx context.Context, id string, amount decimal.Decimal) error {
	s.convCount[id]++
	s.revenue[id] = s.revenue[id].Add(amount)
	return nil
}

func (s *memStore) LatestActiveLinkByUtm(ctx context.Context, source, campaign string) (*model.Link, error) {
	return nil, repository.ErrLinkNotFound
}

func (s *memStore) InsertClick(ctx context.Context, click *model.Click) error {
	s.clicks[click.ID] = click
	s.latestSess[click.SessionID] = click
	return nil
}

func (s *memStore) HasRecentClick(ctx context.Context, linkID, ip string, window time.Duration) (bool, error) {
	return s.recentClick, nil
}

func (s *memStore) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	click, ok := s.clicks[id]
	if !ok {
		return nil, repository.ErrClickNotFound
	}
	return click, nil
}

func (s *memStore) LatestUnconvertedClick(ctx context.Context, sessionID, linkID string) (*model.Click, error) {
	click, ok := s.latestSess[sessionID]
	if !ok || click.LinkID != linkID || click.Converted {
		return nil, repository.ErrClickNotFound
	}
	return click, nil
}

func (s *memStore) MarkConverted(ctx context.Context, clickID, orderID string) (bool, error) {
	click, ok := s.clicks[clickID]
	if !ok || click.Converted {
		return false, nil
	}
	click.Converted = true
	click.OrderID = orderID
	return true, nil
}

func (s *memStore) InsertConversion(ctx context.Context, rec *repository.ConversionRecord) (bool, error) {
	if s.orders[rec.OrderID] {
		return false, nil
	}
	s.orders[rec.OrderID] = true
	return true, nil
}

func (s *memStore) PutSignal(ctx context.Context, kind cache.SignalKind, key string, rec *model.AttributionRecord) error {
	if key != "" {
		s.signals[string(kind)+":"+key] = rec
	}
	return nil
}

func (s *memStore) GetSignal(ctx context.Context, kind cache.SignalKind, key string) (*model.AttributionRecord, error) {
	rec, ok := s.signals[string(kind)+":"+key]
	if !ok {
		return nil, cache.ErrSignalMiss
	}
	return rec, nil
}

func (s *memStore) DeleteSignals(ctx context.Context, keys map[cache.SignalKind]string) error {
	for kind, key := range keys {
		delete(s.signals, string(kind)+":"+key)
	}
	return nil
}

func activeLink(id, code, source string) *model.Link {
	now := time.Now().UTC()
	link := &model.Link{
		ID:          id,
		ShortCode:   code,
		Destination: "https://shop.example.com/product/widget",
		IsActive:    true,
		Revenue:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	link.Utm.Source = source
	return link
}
