package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// APIKeyMiddleware restricts API routes to callers presenting the configured
// key in the X-API-Key header. An empty configured key disables the check.
// Health, liveness, and metrics endpoints are always reachable so probes and
// scrapers do not need credentials.
func APIKeyMiddleware(apiKey string, logger *logrus.Logger) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/ready" || path == "/live" || path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				logger.WithFields(logrus.Fields{
					"path":   path,
					"method": r.Method,
				}).Warn("Access denied: missing or invalid API key")

				writeUnauthorizedError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorizedError writes the JSON error envelope used by the API.
func writeUnauthorizedError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    "unauthorized",
			"message": "missing or invalid API key",
		},
	})
}
