package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/linktrail/linktrail/internal/handler/dto"
	"github.com/linktrail/linktrail/internal/service"
)

// LinkHandler handles HTTP requests for link operations.
type LinkHandler struct {
	svc    *service.LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(svc *service.LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/links.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	input := service.CreateLinkInput{
		Destination: req.Destination,
		CreatedBy:   req.CreatedBy,
	}
	input.Utm.Source = req.Source
	input.Utm.Medium = req.Medium
	input.Utm.Campaign = req.Campaign
	input.Utm.Term = req.Term

	link, err := h.svc.CreateLink(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_created",
		"link_id", link.ID,
		"short_code", link.ShortCode,
		"utm_source", link.Utm.Source,
	)

	writeJSON(w, http.StatusCreated, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Get handles GET /api/v1/links/{id}.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	link, err := h.svc.GetLink(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// List handles GET /api/v1/links.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	input := service.ListLinksInput{
		Source:     query.Get("source"),
		Campaign:   query.Get("campaign"),
		ActiveOnly: query.Get("active") == "true",
		Cursor:     query.Get("cursor"),
		Limit:      limit,
	}

	result, err := h.svc.ListLinks(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkListResponse(result.Links, h.svc.BaseURL(), result.NextCursor, result.HasMore))
}

// Update handles PATCH /api/v1/links/{id}.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	var req dto.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	link, err := h.svc.UpdateLink(r.Context(), service.UpdateLinkInput{
		ID:          id,
		Destination: req.Destination,
		Source:      req.Source,
		Medium:      req.Medium,
		Campaign:    req.Campaign,
		Term:        req.Term,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_updated",
		"link_id", link.ID,
		"short_code", link.ShortCode,
	)

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Deactivate handles DELETE /api/v1/links/{id}.
func (h *LinkHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	if err := h.svc.DeactivateLink(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_deactivated", "link_id", id)

	w.WriteHeader(http.StatusNoContent)
}

// BulkDeactivate handles POST /api/v1/links/bulk-deactivate.
func (h *LinkHandler) BulkDeactivate(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkDeactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_IDS", "At least one link ID is required")
		return
	}

	count, err := h.svc.BulkDeactivate(r.Context(), req.IDs)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("links_bulk_deactivated", "requested", len(req.IDs), "deactivated", count)

	writeJSON(w, http.StatusOK, dto.BulkDeactivateResponse{Deactivated: count})
}

// handleServiceError maps service errors to HTTP responses.
func (h *LinkHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "INVALID_DESTINATION", "Destination must be a valid http(s) URL")
	case errors.Is(err, service.ErrURLTooLong):
		writeError(w, http.StatusBadRequest, "URL_TOO_LONG", "Destination URL is too long")
	case errors.Is(err, service.ErrMissingSource):
		writeError(w, http.StatusBadRequest, "MISSING_SOURCE", "utm_source is required")
	case errors.Is(err, service.ErrDomainMismatch):
		writeError(w, http.StatusBadRequest, "DOMAIN_MISMATCH", "Destination must stay on the site domain")
	case errors.Is(err, service.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
	default:
		h.logger.Error("link handler error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
