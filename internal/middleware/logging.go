// Package middleware contains HTTP middleware shared by all routes.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logger logs each completed request with structured fields. The chi
// request ID is included when the RequestID middleware ran earlier in
// the chain, which ties log lines to error reports.
//
// chi's WrapResponseWriter is used instead of a hand-rolled wrapper
// because it proxies http.Hijacker — WebSocket upgrades pass through
// this middleware, and a wrapper without Hijack would break them. The
// line for an upgraded connection is emitted when it finally closes,
// with the full connection duration.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", wrapped.BytesWritten()),
			}
			if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("requestId", reqID))
			}

			logger.Info("request completed", attrs...)
		})
	}
}
