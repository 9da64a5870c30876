package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dongurihub/filedrop/internal/auth"
)

// adminAuth guards administrative endpoints with a fixed bearer token.
func adminAuth(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}
}

// sessionAuth guards the listing API with the access gate. When no
// credentials are configured the gate is disabled and every request passes.
func sessionAuth(gate *auth.Gate, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !gate.Enabled(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}

		token := auth.TokenFromRequest(r)
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		username, err := gate.Authorize(token)
		if err != nil {
			// Expired, tampered, and malformed all look the same to the
			// client; the log keeps them apart.
			slog.Warn("Session rejected", "error", err, "remote_addr", r.RemoteAddr)
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		slog.Debug("Session authorized", "username", username)
		next.ServeHTTP(w, r)
	}
}

// loggingMiddleware logs HTTP requests with structured logging.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
