package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linktrail/linktrail/internal/handler/dto"
	"github.com/linktrail/linktrail/internal/repository"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 366
	dateLayout       = "2006-01-02"
)

// AnalyticsHandler serves the stats roll-ups.
type AnalyticsHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(repo *repository.Repository, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		repo:   repo,
		logger: logger,
	}
}

// SiteStats handles GET /api/v1/stats.
func (h *AnalyticsHandler) SiteStats(w http.ResponseWriter, r *http.Request) {
	h.stats(w, r, "")
}

// LinkStats handles GET /api/v1/links/{id}/stats.
func (h *AnalyticsHandler) LinkStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}
	h.stats(w, r, id)
}

func (h *AnalyticsHandler) stats(w http.ResponseWriter, r *http.Request, linkID string) {
	filter, ok := parseStatsRange(w, r)
	if !ok {
		return
	}
	filter.LinkID = linkID

	ctx := r.Context()

	totals, err := h.repo.GetTotals(ctx, filter)
	if err != nil {
		h.logger.Error("stats_totals_error", "link_id", linkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	daily, err := h.repo.GetDailySeries(ctx, filter)
	if err != nil {
		h.logger.Error("stats_daily_error", "link_id", linkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	sources, err := h.repo.GetSourceBreakdown(ctx, filter)
	if err != nil {
		h.logger.Error("stats_sources_error", "link_id", linkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	devices, err := h.repo.GetDeviceBreakdown(ctx, filter)
	if err != nil {
		h.logger.Error("stats_devices_error", "link_id", linkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	resp := dto.StatsResponse{
		LinkID:      linkID,
		GeneratedAt: time.Now().UTC(),
	}
	resp.Period.From = filter.From.Format(dateLayout)
	resp.Period.To = filter.To.AddDate(0, 0, -1).Format(dateLayout)
	resp.Totals.Clicks = totals.Clicks
	resp.Totals.Conversions = totals.Conversions
	resp.Totals.Revenue = totals.Revenue.StringFixed(2)
	resp.Totals.ConversionRate = totals.ConversionRate
	resp.Totals.AvgOrderValue = totals.AvgOrderValue.StringFixed(2)

	for _, b := range daily {
		resp.Breakdown.Daily = append(resp.Breakdown.Daily, dto.DailyStats{
			Date:        b.Date.Format(dateLayout),
			Clicks:      b.Clicks,
			Conversions: b.Conversions,
		})
	}
	for _, b := range sources {
		resp.Breakdown.Sources = append(resp.Breakdown.Sources, dto.BreakdownStats{
			Key:         b.Key,
			Clicks:      b.Clicks,
			Conversions: b.Conversions,
		})
	}
	for _, b := range devices {
		resp.Breakdown.Devices = append(resp.Breakdown.Devices, dto.BreakdownStats{
			Key:         b.Key,
			Clicks:      b.Clicks,
			Conversions: b.Conversions,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseStatsRange reads from/to query params (inclusive ISO dates) and turns
// them into a half-open [From, To) filter. Defaults to the last 30 days.
func parseStatsRange(w http.ResponseWriter, r *http.Request) (repository.StatsFilter, bool) {
	var filter repository.StatsFilter

	query := r.URL.Query()
	now := time.Now().UTC()

	to := now.Truncate(24 * time.Hour).AddDate(0, 0, 1)
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", "to must be a YYYY-MM-DD date")
			return filter, false
		}
		to = parsed.AddDate(0, 0, 1)
	}

	from := to.AddDate(0, 0, -defaultStatsDays)
	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", "from must be a YYYY-MM-DD date")
			return filter, false
		}
		from = parsed
	}

	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from must be before to")
		return filter, false
	}
	if to.Sub(from) > maxStatsDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "RANGE_TOO_WIDE", "Date range may span at most one year")
		return filter, false
	}

	filter.From = from
	filter.To = to
	return filter, true
}
