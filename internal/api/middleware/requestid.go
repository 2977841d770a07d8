package middleware

import (
	"net/http"

	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id, taken from X-Request-ID or
// generated, and stores a logger carrying it in the request context.
func RequestLogger(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := logging.SanitizeRequestID(r.Header.Get(RequestIDHeader))
			if id == "" {
				id = logging.NewRequestID()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := logging.WithRequestID(r.Context(), id)
			ctx = logging.WithLogger(ctx, logger.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
			}))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
