package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lumenjournal/lumen/internal/observability"
)

// LoggingMiddleware logs HTTP requests and records request metrics.
func LoggingMiddleware(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if metrics != nil {
				// The route pattern keeps label cardinality bounded; it is
				// populated once the mux has matched the request.
				path := r.Pattern
				if path == "" {
					path = "unmatched"
				}
				metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			}
			if logger != nil {
				logger.Debug("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"duration", time.Since(start),
					"remote_addr", r.RemoteAddr,
				)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code while
// still exposing http.Flusher for the stream endpoints.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
