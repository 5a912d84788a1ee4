package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/auth"
	"github.com/linktrail/linktrail/internal/handler/dto"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/tracking"
)

// Signature headers for signed conversion triggers.
const (
	SignatureHeader = "X-Linktrail-Signature"
	TimestampHeader = "X-Linktrail-Timestamp"
)

const maxConversionBody = 64 * 1024

// ConversionHandler receives order/donation lifecycle events and runs the
// attribution pipeline: resolve, then record.
type ConversionHandler struct {
	resolver    *tracking.Resolver
	conversions *tracking.ConversionRecorder
	cookies     *tracking.CookieWriter
	secret      string // empty disables signature checks
	logger      *slog.Logger
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(
	resolver *tracking.Resolver,
	conversions *tracking.ConversionRecorder,
	cookies *tracking.CookieWriter,
	secret string,
	logger *slog.Logger,
) *ConversionHandler {
	return &ConversionHandler{
		resolver:    resolver,
		conversions: conversions,
		cookies:     cookies,
		secret:      secret,
		logger:      logger,
	}
}

// Convert handles POST /api/v1/conversions. Unresolved attribution is a
// valid outcome, not an error: the response reports attributed=false and the
// caller may retry later when signals have propagated.
func (h *ConversionHandler) Convert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConversionBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read request body")
		return
	}

	if !h.verifySignature(w, r, body) {
		return
	}

	var req dto.ConversionRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ORDER_ID", "order_id is required")
		return
	}

	total := decimal.Zero
	if req.OrderTotal != "" {
		total, err = decimal.NewFromString(req.OrderTotal)
		if err != nil || total.IsNegative() {
			writeError(w, http.StatusBadRequest, "INVALID_TOTAL", "order_total must be a non-negative decimal")
			return
		}
	}

	event := h.buildEvent(r, req, total)

	resolution := h.resolver.Resolve(r.Context(), event)

	outcome, err := h.conversions.Record(r.Context(), event, resolution)
	if err != nil {
		h.logger.Error("conversion_error", "order_id", req.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Conversion could not be recorded")
		return
	}

	resp := dto.ConversionResponse{
		OrderID:    req.OrderID,
		Attributed: outcome.Recorded,
		Duplicate:  outcome.Duplicate,
	}
	if resolution != nil {
		resp.LinkID = resolution.LinkID
		resp.Source = string(resolution.Source)
		resp.ClickID = outcome.ClickID
	}

	if outcome.Recorded {
		for _, c := range h.cookies.ClearCookies() {
			http.SetCookie(w, c)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// CaptureCheckout handles POST /api/v1/checkouts: mirrors the session
// attribution under the purchaser's email hash for later retries.
func (h *ConversionHandler) CaptureCheckout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "MISSING_EMAIL", "email is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = cookieValue(r, tracking.CookieSessionID)
	}

	h.conversions.CaptureCheckout(r.Context(), sessionID, req.Email)

	w.WriteHeader(http.StatusNoContent)
}

// buildEvent assembles the conversion event from the payload and the ambient
// request signals (cookies, IP, fingerprint headers).
func (h *ConversionHandler) buildEvent(r *http.Request, req dto.ConversionRequest, total decimal.Decimal) model.ConversionEvent {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = cookieValue(r, tracking.CookieSessionID)
	}

	ua := r.Header.Get("User-Agent")

	return model.ConversionEvent{
		OrderID:      req.OrderID,
		Email:        req.Email,
		OrderTotal:   total,
		StoredLinkID: req.LinkID,
		CookieLinkID: cookieValue(r, tracking.CookieLinkID),
		CookieClick:  cookieValue(r, tracking.CookieClickID),
		SessionID:    sessionID,
		IPAddress:    getClientIP(r),
		Fingerprint:  tracking.Fingerprint(ua, r.Header.Get("Accept-Language"), r.Header.Get("Accept-Encoding")),
		OrderUtm: model.UtmParams{
			Source:   req.UtmSource,
			Campaign: req.UtmCampaign,
		},
	}
}

// verifySignature validates the HMAC signature when a secret is configured.
// Returns false after writing the error response.
func (h *ConversionHandler) verifySignature(w http.ResponseWriter, r *http.Request, body []byte) bool {
	if h.secret == "" {
		return true
	}

	signature := r.Header.Get(SignatureHeader)
	tsHeader := r.Header.Get(TimestampHeader)
	if signature == "" || tsHeader == "" {
		writeError(w, http.StatusUnauthorized, "MISSING_SIGNATURE", "Signature required")
		return false
	}

	timestamp, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_TIMESTAMP", "Invalid signature timestamp")
		return false
	}

	if err := auth.ValidateSignature(h.secret, signature, timestamp, body, auth.DefaultReplayWindow); err != nil {
		if errors.Is(err, auth.ErrReplayWindowExceeded) {
			writeError(w, http.StatusUnauthorized, "STALE_SIGNATURE", "Signature timestamp outside replay window")
		} else {
			writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "Signature verification failed")
		}
		return false
	}

	return true
}
