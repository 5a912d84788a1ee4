// Package tracking implements the attribution pipeline: recording clicks on
// short links, resolving conversions back to the originating link, and
// marking clicks converted exactly once per order.
//
// The pipeline is composed explicitly by the caller:
//
//	ClickRecorder.Handle(request)  -> RedirectDecision
//	Resolver.Resolve(event)        -> *Resolution (nil = unattributed)
//	ConversionRecorder.Record(event, resolution)
package tracking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
)

// LinkStore is the registry surface the pipeline needs.
// *repository.Repository satisfies it.
type LinkStore interface {
	GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error)
	IsLinkActive(ctx context.Context, id string) (bool, error)
	IncrementClicks(ctx context.Context, id string) error
	IncrementConversion(ctx context.Context, id string, amount decimal.Decimal) error
	LatestActiveLinkByUtm(ctx context.Context, source, campaign string) (*model.Link, error)
}

// ClickStore is the click-table surface the pipeline needs.
type ClickStore interface {
	InsertClick(ctx context.Context, click *model.Click) error
	HasRecentClick(ctx context.Context, linkID, ip string, window time.Duration) (bool, error)
	GetClickByID(ctx context.Context, id string) (*model.Click, error)
	LatestUnconvertedClick(ctx context.Context, sessionID, linkID string) (*model.Click, error)
	MarkConverted(ctx context.Context, clickID, orderID string) (bool, error)
}

// ConversionStore persists the per-order idempotency guard.
type ConversionStore interface {
	InsertConversion(ctx context.Context, rec *repository.ConversionRecord) (bool, error)
}

// SignalStore is the identity signal store surface.
// *cache.Cache satisfies it.
type SignalStore interface {
	PutSignal(ctx context.Context, kind cache.SignalKind, key string, rec *model.AttributionRecord) error
	GetSignal(ctx context.Context, kind cache.SignalKind, key string) (*model.AttributionRecord, error)
	DeleteSignals(ctx context.Context, keys map[cache.SignalKind]string) error
}
