package tracking

import (
	"context"
	"errors"
	"log/slog"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/model"
)

// Resolver maps a conversion event to the single most trustworthy prior
// link, walking a fixed precedence chain: explicit prior linkage, then the
// same-device cookie, then the session store, then the weaker shared
// signals, then a UTM heuristic as a last resort.
//
// Every call site goes through Resolve; nothing re-implements the chain.
type Resolver struct {
	links   LinkStore
	signals SignalStore
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(links LinkStore, signals SignalStore, recorder metrics.Recorder, logger *slog.Logger) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Resolver{
		links:   links,
		signals: signals,
		metrics: recorder,
		logger:  logger,
	}
}

// Resolve walks the precedence chain and returns the winning resolution, or
// nil when the conversion stays unattributed. Unresolved is a valid terminal
// outcome, not an error: it is counted and the caller simply records
// nothing.
//
// Every signal is a hint that may point at a link deactivated since the hint
// was written, so each step revalidates and falls through on a dead link.
// The chain is deterministic for a fixed set of inputs.
func (r *Resolver) Resolve(ctx context.Context, event model.ConversionEvent) *model.Resolution {
	if res := r.fromLinkID(ctx, event.StoredLinkID, "", model.ResolvedByOrder); res != nil {
		return r.won(res)
	}

	if res := r.fromLinkID(ctx, event.CookieLinkID, event.CookieClick, model.ResolvedByCookie); res != nil {
		return r.won(res)
	}

	if res := r.fromSignal(ctx, cache.SignalSession, event.SessionID, model.ResolvedBySession); res != nil {
		return r.won(res)
	}

	if res := r.fromSignal(ctx, cache.SignalIP, HashIP(event.IPAddress), model.ResolvedByIP); res != nil {
		return r.won(res)
	}

	if res := r.fromSignal(ctx, cache.SignalFingerprint, event.Fingerprint, model.ResolvedByFingerprint); res != nil {
		return r.won(res)
	}

	if res := r.fromSignal(ctx, cache.SignalEmail, HashEmail(event.Email), model.ResolvedByEmail); res != nil {
		return r.won(res)
	}

	if res := r.fromUtmMatch(ctx, event.OrderUtm); res != nil {
		return r.won(res)
	}

	r.metrics.IncUnresolved()
	r.logger.Info("conversion_unresolved", "order_id", event.OrderID)
	return nil
}

func (r *Resolver) won(res *model.Resolution) *model.Resolution {
	r.metrics.IncResolution(string(res.Source))
	return res
}

// fromLinkID validates a directly supplied link id.
func (r *Resolver) fromLinkID(ctx context.Context, linkID, clickID string, source model.ResolutionSource) *model.Resolution {
	if linkID == "" {
		return nil
	}
	if !r.linkActive(ctx, linkID) {
		return nil
	}
	return &model.Resolution{LinkID: linkID, ClickID: clickID, Source: source}
}

// fromSignal reads the signal store under kind/key and validates the hint.
func (r *Resolver) fromSignal(ctx context.Context, kind cache.SignalKind, key string, source model.ResolutionSource) *model.Resolution {
	if key == "" {
		return nil
	}

	rec, err := r.signals.GetSignal(ctx, kind, key)
	if err != nil {
		if !errors.Is(err, cache.ErrSignalMiss) {
			// A broken signal store costs attribution, not correctness.
			r.logger.Warn("signal lookup failed", "kind", string(kind), "error", err)
		}
		return nil
	}

	if rec.LinkID == "" || !r.linkActive(ctx, rec.LinkID) {
		return nil
	}

	return &model.Resolution{LinkID: rec.LinkID, ClickID: rec.ClickID, Source: source}
}

// fromUtmMatch is the last-resort heuristic: the most recently created
// active link sharing the order's recorded utm_source (and campaign when
// present). Last created wins on ties.
func (r *Resolver) fromUtmMatch(ctx context.Context, utm model.UtmParams) *model.Resolution {
	if utm.Source == "" {
		return nil
	}

	link, err := r.links.LatestActiveLinkByUtm(ctx, utm.Source, utm.Campaign)
	if err != nil {
		return nil
	}

	return &model.Resolution{LinkID: link.ID, Source: model.ResolvedByUtmMatch}
}

// linkActive treats lookup failures as inactive: a hint we cannot validate
// is a hint we do not trust.
func (r *Resolver) linkActive(ctx context.Context, linkID string) bool {
	active, err := r.links.IsLinkActive(ctx, linkID)
	if err != nil {
		r.logger.Warn("link validation failed", "link_id", linkID, "error", err)
		return false
	}
	return active
}
