package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
)

// ConversionOutcome reports what Record did.
type ConversionOutcome struct {
	Recorded  bool   // counters were incremented for this call
	Duplicate bool   // the order had already been recorded
	ClickID   string // the click marked converted, when one was found
}

// ConversionRecorder idempotently applies a resolved conversion: one counter
// increment and at most one click flip per order id, no matter how many
// lifecycle events deliver the same order.
type ConversionRecorder struct {
	links       LinkStore
	clicks      ClickStore
	conversions ConversionStore
	signals     SignalStore
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewConversionRecorder creates a ConversionRecorder.
func NewConversionRecorder(
	links LinkStore,
	clicks ClickStore,
	conversions ConversionStore,
	signals SignalStore,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *ConversionRecorder {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ConversionRecorder{
		links:       links,
		clicks:      clicks,
		conversions: conversions,
		signals:     signals,
		metrics:     recorder,
		logger:      logger,
	}
}

// Record applies a resolved conversion. A nil resolution skips everything:
// no guard row is written, so a later retry with better signals can still
// attribute the order.
//
// The guard insert is the exactly-once gate: the same order arriving from
// two lifecycle hooks races on the conversions unique constraint and only
// one caller proceeds to touch counters. Guard and counter failures are
// fatal; signal clearing is best-effort.
func (r *ConversionRecorder) Record(ctx context.Context, event model.ConversionEvent, res *model.Resolution) (*ConversionOutcome, error) {
	if res == nil {
		return &ConversionOutcome{}, nil
	}

	click := r.locateClick(ctx, event, res)
	clickID := ""
	if click != nil {
		clickID = click.ID
	}

	inserted, err := r.conversions.InsertConversion(ctx, &repository.ConversionRecord{
		OrderID:    event.OrderID,
		LinkID:     res.LinkID,
		ClickID:    clickID,
		OrderTotal: event.OrderTotal,
		EmailHash:  HashEmail(event.Email),
	})
	if err != nil {
		return nil, fmt.Errorf("insert conversion guard: %w", err)
	}
	if !inserted {
		r.metrics.IncConversionDuplicate()
		r.logger.Info("conversion_duplicate", "order_id", event.OrderID)
		return &ConversionOutcome{Duplicate: true}, nil
	}

	if click != nil {
		flipped, err := r.clicks.MarkConverted(ctx, click.ID, event.OrderID)
		if err != nil {
			return nil, fmt.Errorf("mark click converted: %w", err)
		}
		if !flipped {
			// Already converted by another order; counters still move, the
			// click linkage just stays with the first order.
			r.logger.Warn("click already converted",
				"click_id", click.ID,
				"order_id", event.OrderID,
			)
			clickID = ""
		}
	}

	if err := r.links.IncrementConversion(ctx, res.LinkID, event.OrderTotal); err != nil {
		return nil, fmt.Errorf("increment conversion: %w", err)
	}

	r.clearSignals(ctx, event)

	r.metrics.IncConversionRecorded()
	r.logger.Info("conversion_recorded",
		"order_id", event.OrderID,
		"link_id", res.LinkID,
		"click_id", clickID,
		"source", string(res.Source),
		"total", event.OrderTotal.String(),
	)

	return &ConversionOutcome{Recorded: true, ClickID: clickID}, nil
}

// locateClick picks the click to mark converted: the exact click id when the
// resolution carries one and it belongs to the resolved link, otherwise the
// most recent unconverted click matching session and link. No click at all
// is fine: counters still move.
func (r *ConversionRecorder) locateClick(ctx context.Context, event model.ConversionEvent, res *model.Resolution) *model.Click {
	if res.ClickID != "" {
		click, err := r.clicks.GetClickByID(ctx, res.ClickID)
		if err == nil && click.LinkID == res.LinkID {
			return click
		}
		if err != nil && !errors.Is(err, repository.ErrClickNotFound) {
			r.logger.Warn("click lookup failed", "click_id", res.ClickID, "error", err)
		}
	}

	if event.SessionID == "" {
		return nil
	}

	click, err := r.clicks.LatestUnconvertedClick(ctx, event.SessionID, res.LinkID)
	if err != nil {
		if !errors.Is(err, repository.ErrClickNotFound) {
			r.logger.Warn("unconverted click lookup failed",
				"session_id", event.SessionID,
				"error", err,
			)
		}
		return nil
	}

	return click
}

// clearSignals drops the visitor's attribution hints after a resolved
// conversion so a second unrelated purchase is not re-attributed.
func (r *ConversionRecorder) clearSignals(ctx context.Context, event model.ConversionEvent) {
	keys := map[cache.SignalKind]string{
		cache.SignalSession:     event.SessionID,
		cache.SignalIP:          HashIP(event.IPAddress),
		cache.SignalFingerprint: event.Fingerprint,
		cache.SignalEmail:       HashEmail(event.Email),
	}

	if err := r.signals.DeleteSignals(ctx, keys); err != nil {
		r.logger.Warn("signal clear failed", "order_id", event.OrderID, "error", err)
	}
}

// CaptureCheckout mirrors the visitor's session attribution under the
// purchaser's email hash when a checkout begins. Later conversion retries
// can then resolve by email even after the session signals expire.
func (r *ConversionRecorder) CaptureCheckout(ctx context.Context, sessionID, email string) {
	emailKey := HashEmail(email)
	if sessionID == "" || emailKey == "" {
		return
	}

	rec, err := r.signals.GetSignal(ctx, cache.SignalSession, sessionID)
	if err != nil {
		if !errors.Is(err, cache.ErrSignalMiss) {
			r.logger.Warn("checkout capture lookup failed", "error", err)
		}
		return
	}

	if err := r.signals.PutSignal(ctx, cache.SignalEmail, emailKey, rec); err != nil {
		r.logger.Warn("checkout capture store failed", "error", err)
	}
}
