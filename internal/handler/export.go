package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/linktrail/linktrail/internal/export"
	"github.com/linktrail/linktrail/internal/repository"
)

// ExportHandler streams click dumps for offline analysis.
type ExportHandler struct {
	repo   *repository.Repository
	logger *slog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(repo *repository.Repository, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		repo:   repo,
		logger: logger,
	}
}

// Clicks handles GET /api/v1/export/clicks. Format defaults to CSV; pass
// format=xlsx for a spreadsheet.
func (h *ExportHandler) Clicks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be csv or xlsx")
		return
	}

	filter := repository.ExportFilter{LinkID: query.Get("link_id")}

	if raw := query.Get("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", "from must be a YYYY-MM-DD date")
			return
		}
		filter.From = &parsed
	}
	if raw := query.Get("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_DATE", "to must be a YYYY-MM-DD date")
			return
		}
		// Inclusive end date, exclusive bound in the query.
		end := parsed.AddDate(0, 0, 1)
		filter.To = &end
	}

	rows, err := h.repo.ListClicksForExport(r.Context(), filter)
	if err != nil {
		h.logger.Error("export_query_error", "link_id", filter.LinkID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	filename := fmt.Sprintf("clicks-%s.%s", time.Now().UTC().Format(dateLayout), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = export.WriteXLSX(w, rows)
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = export.WriteCSV(w, rows)
	}
	if err != nil {
		// Headers are already on the wire. Log and give up.
		h.logger.Error("export_write_error", "format", format, "error", err)
		return
	}

	h.logger.Info("clicks_exported", "format", format, "rows", len(rows), "link_id", filter.LinkID)
}
