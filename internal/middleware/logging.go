package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/splitbill/internal/metrics"
)

// RequestLogger logs every request and records its duration in m.
// Server errors log at Error, client errors at Warn, everything else at Info.
func RequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)
			route := routePattern(r)
			m.ObserveRequest(r.Method, route, status, duration)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", duration.Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
				"subject", GetSubject(r.Context()), // empty if unauthenticated
			}
			switch {
			case status >= http.StatusInternalServerError:
				slog.Error("HTTP request failed", attrs...)
			case status >= http.StatusBadRequest:
				slog.Warn("HTTP request rejected", attrs...)
			default:
				slog.Info("HTTP request ok", attrs...)
			}
		})
	}
}

// routePattern returns the matched chi route, so metrics are not labeled by raw IDs.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
