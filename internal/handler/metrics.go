package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/linktrail/linktrail/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "linktrail_clicks_recorded_total %d\n", snap.ClicksRecorded)
	writeMetric(w, "linktrail_clicks_deduplicated_total %d\n", snap.ClicksDeduplicated)
	writeMetric(w, "linktrail_bot_clicks_total %d\n", snap.BotClicks)
	writeMetric(w, "linktrail_redirect_not_found_total %d\n", snap.RedirectNotFound)

	writeMetric(w, "linktrail_links_created_total %d\n", snap.LinksCreated)
	writeMetric(w, "linktrail_links_updated_total %d\n", snap.LinksUpdated)
	writeMetric(w, "linktrail_links_deactivated_total %d\n", snap.LinksDeactivated)

	sources := make([]string, 0, len(snap.Resolutions))
	for source := range snap.Resolutions {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		writeMetric(w, "linktrail_resolutions_total{source=%q} %d\n", source, snap.Resolutions[source])
	}

	writeMetric(w, "linktrail_conversions_unresolved_total %d\n", snap.Unresolved)
	writeMetric(w, "linktrail_conversions_recorded_total %d\n", snap.ConversionsRecorded)
	writeMetric(w, "linktrail_conversions_duplicate_total %d\n", snap.ConversionsDuplicate)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
