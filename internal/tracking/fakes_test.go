package tracking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
)

// fakeLinkStore implements LinkStore backed by maps.
type fakeLinkStore struct {
	byCode map[string]*model.Link
	byID   map[string]*model.Link

	clickIncrements      map[string]int
	conversionIncrements map[string]int
	revenue              map[string]decimal.Decimal

	latestByUtm *model.Link

	incrementClicksErr error
}

func newFakeLinkStore(links ...*model.Link) *fakeLinkStore {
	s := &fakeLinkStore{
		byCode:               make(map[string]*model.Link),
		byID:                 make(map[string]*model.Link),
		clickIncrements:      make(map[string]int),
		conversionIncrements: make(map[string]int),
		revenue:              make(map[string]decimal.Decimal),
	}
	for _, l := range links {
		s.byCode[l.ShortCode] = l
		s.byID[l.ID] = l
	}
	return s
}

func (s *fakeLinkStore) GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	link, ok := s.byCode[shortCode]
	if !ok || !link.IsActive {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (s *fakeLinkStore) IsLinkActive(ctx context.Context, id string) (bool, error) {
	link, ok := s.byID[id]
	return ok && link.IsActive, nil
}

func (s *fakeLinkStore) IncrementClicks(ctx context.Context, id string) error {
	if s.incrementClicksErr != nil {
		return s.incrementClicksErr
	}
	s.clickIncrements[id]++
	return nil
}

func (s *fakeLinkStore) IncrementConversion(ctx context.Context, id string, amount decimal.Decimal) error {
	s.conversionIncrements[id]++
	s.revenue[id] = s.revenue[id].Add(amount)
	return nil
}

func (s *fakeLinkStore) LatestActiveLinkByUtm(ctx context.Context, source, campaign string) (*model.Link, error) {
	if s.latestByUtm == nil || s.latestByUtm.Utm.Source != source {
		return nil, repository.ErrLinkNotFound
	}
	if campaign != "" && s.latestByUtm.Utm.Campaign != campaign {
		return nil, repository.ErrLinkNotFound
	}
	return s.latestByUtm, nil
}

// fakeClickStore implements ClickStore.
type fakeClickStore struct {
	inserted []*model.Click
	byID     map[string]*model.Click

	recentClick   bool
	recentErr     error
	latestBySess  map[string]*model.Click
	convertedByID map[string]string // click id -> order id

	insertErr error
}

func newFakeClickStore() *fakeClickStore {
	return &fakeClickStore{
		byID:          make(map[string]*model.Click),
		latestBySess:  make(map[string]*model.Click),
		convertedByID: make(map[string]string),
	}
}

func (s *fakeClickStore) InsertClick(ctx context.Context, click *model.Click) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, click)
	s.byID[click.ID] = click
	return nil
}

func (s *fakeClickStore) HasRecentClick(ctx context.Context, linkID, ip string, window time.Duration) (bool, error) {
	if s.recentErr != nil {
		return false, s.recentErr
	}
	return s.recentClick, nil
}

func (s *fakeClickStore) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	click, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrClickNotFound
	}
	return click, nil
}

func (s *fakeClickStore) LatestUnconvertedClick(ctx context.Context, sessionID, linkID string) (*model.Click, error) {
	click, ok := s.latestBySess[sessionID]
	if !ok || click.LinkID != linkID || click.Converted {
		return nil, repository.ErrClickNotFound
	}
	return click, nil
}

func (s *fakeClickStore) MarkConverted(ctx context.Context, clickID, orderID string) (bool, error) {
	click, ok := s.byID[clickID]
	if !ok || click.Converted {
		return false, nil
	}
	click.Converted = true
	click.OrderID = orderID
	s.convertedByID[clickID] = orderID
	return true, nil
}

// fakeConversionStore implements ConversionStore with an order id set.
type fakeConversionStore struct {
	orders    map[string]*repository.ConversionRecord
	insertErr error
}

func newFakeConversionStore() *fakeConversionStore {
	return &fakeConversionStore{orders: make(map[string]*repository.ConversionRecord)}
}

func (s *fakeConversionStore) InsertConversion(ctx context.Context, rec *repository.ConversionRecord) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.orders[rec.OrderID]; exists {
		return false, nil
	}
	s.orders[rec.OrderID] = rec
	return true, nil
}

// fakeSignalStore implements SignalStore with an in-memory map.
type fakeSignalStore struct {
	records map[string]*model.AttributionRecord
	putErr  error
	getErr  error
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{records: make(map[string]*model.AttributionRecord)}
}

func signalMapKey(kind cache.SignalKind, key string) string {
	return string(kind) + ":" + key
}

func (s *fakeSignalStore) PutSignal(ctx context.Context, kind cache.SignalKind, key string, rec *model.AttributionRecord) error {
	if s.putErr != nil {
		return s.putErr
	}
	if key == "" {
		return nil
	}
	s.records[signalMapKey(kind, key)] = rec
	return nil
}

func (s *fakeSignalStore) GetSignal(ctx context.Context, kind cache.SignalKind, key string) (*model.AttributionRecord, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[signalMapKey(kind, key)]
	if !ok {
		return nil, cache.ErrSignalMiss
	}
	return rec, nil
}

func (s *fakeSignalStore) DeleteSignals(ctx context.Context, keys map[cache.SignalKind]string) error {
	for kind, key := range keys {
		if key != "" {
			delete(s.records, signalMapKey(kind, key))
		}
	}
	return nil
}

// testLink builds an active link for tests.
func testLink(id, code, source string) *model.Link {
	link := &model.Link{
		ID:          id,
		ShortCode:   code,
		Destination: "https://shop.example.com/product/widget",
		IsActive:    true,
		Revenue:     decimal.Zero,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	link.Utm.Source = source
	link.Utm.Campaign = "launch"
	return link
}
