package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/linktrail/linktrail/internal/cache"
)

// RateLimitConfig carries dependencies for rate limit middleware.
type RateLimitConfig struct {
	Logger *slog.Logger
	Cache  *cache.Cache

	RedirectEnabled bool
	RedirectRPS     int
	RedirectBurst   int
}

// RateLimitIP limits redirect requests per client IP using a Redis token
// bucket. When the limiter itself fails, requests pass: a broken Redis must
// not take down the redirect path.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RedirectEnabled {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Cache.CheckIPRateLimit(r.Context(), clientIP(r), cfg.RedirectRPS, cfg.RedirectBurst)
			if err != nil {
				cfg.Logger.Warn("rate limit check failed",
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP buckets by client address, not socket address: CDN header first,
// then the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr with
// the ephemeral port stripped.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
