package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tbuliHe/visualizer/internal/telemetry"
)

// routePattern returns the chi pattern the request matched, or "unknown"
// for unmatched paths so labels and span names stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}

// Metrics records request counts and latency per route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		route := routePattern(r)
		status := strconv.Itoa(rw.statusCode/100) + "xx"

		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, status, route).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
