package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linktrail/linktrail/internal/auth"
)

// AuthConfig carries dependencies for the admin auth middleware.
type AuthConfig struct {
	Logger *slog.Logger

	// AdminKeyHash is the argon2id PHC hash the bearer key must match.
	AdminKeyHash string
}

// AdminAuth guards the admin API with a single bearer key, verified against
// an argon2id hash so the plaintext key never lives in config.
func AdminAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				writeAuthError(w, http.StatusUnauthorized, "MISSING_KEY", "Authorization required")
				return
			}

			ok, err := auth.VerifyKey(key, cfg.AdminKeyHash)
			if err != nil {
				cfg.Logger.Error("admin key verification failed",
					"request_id", GetRequestID(r.Context()),
					"error", err,
				)
				writeAuthError(w, http.StatusInternalServerError, "AUTH_ERROR", "Authentication unavailable")
				return
			}
			if !ok {
				cfg.Logger.Warn("admin key rejected",
					"request_id", GetRequestID(r.Context()),
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "INVALID_KEY", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
