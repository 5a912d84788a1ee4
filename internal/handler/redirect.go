package handler

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linktrail/linktrail/internal/tracking"
)

// RedirectHandler handles short link visits.
type RedirectHandler struct {
	recorder *tracking.ClickRecorder
	logger   *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(recorder *tracking.ClickRecorder, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// Redirect handles GET /{shortCode}: records the click and sends the visitor
// to the destination. In-app browsers get a script-based redirect page
// because some of them mishandle HTTP redirects.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	if shortCode == "" {
		h.writeNotFound(w)
		return
	}

	start := time.Now()

	visit := tracking.VisitRequest{
		ShortCode:      shortCode,
		IP:             getClientIP(r),
		UserAgent:      r.Header.Get("User-Agent"),
		Referrer:       r.Header.Get("Referer"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		Headers:        r.Header,
	}

	decision, err := h.recorder.Handle(r.Context(), visit)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, tracking.ErrLinkNotFound) {
			h.logger.Info("redirect_not_found",
				"short_code", shortCode,
				"duration_ms", float64(duration.Microseconds())/1000,
			)
			h.writeNotFound(w)
			return
		}

		h.logger.Error("redirect_error",
			"short_code", shortCode,
			"error", err,
			"duration_ms", float64(duration.Microseconds())/1000,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}

	for _, c := range decision.Cookies {
		http.SetCookie(w, c)
	}

	// Set security headers
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Cache-Control", "private, max-age=0")

	if decision.ClientSide {
		h.writeClientRedirect(w, decision.Destination)
		return
	}

	http.Redirect(w, r, decision.Destination, http.StatusFound)
}

// writeClientRedirect renders a minimal page that navigates via script, with
// a meta refresh and plain anchor as fallbacks.
func (h *RedirectHandler) writeClientRedirect(w http.ResponseWriter, destination string) {
	escaped := html.EscapeString(destination)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url=%s">
<script>window.location.replace(%q);</script>
</head>
<body>
<a href="%s">Continue</a>
</body>
</html>
`, escaped, destination, escaped)
}

func (h *RedirectHandler) writeNotFound(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=0")
	writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
}
