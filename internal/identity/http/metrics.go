package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/pkg/httpx"
)

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request counts and latency per route pattern.
// It has to sit directly in front of the mux: the mux fills in r.Pattern on
// the request it receives.
func MetricsMiddleware(m *metrics.Metrics) httpx.Middleware {
	if m == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(r.Method, route, rw.status, time.Since(start))
		})
	}
}
