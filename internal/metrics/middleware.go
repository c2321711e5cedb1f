package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests no chi route accepted.
const unmatchedRoute = "unmatched"

var (
	httpLabels = []string{"method", "route", "status"}

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resdex",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent serving a request, by chi route pattern.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 12),
	}, httpLabels)

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resdex",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served, by chi route pattern.",
	}, httpLabels)

	// Byte volume per route, mostly file downloads.
	httpResponseBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resdex",
		Subsystem: "http",
		Name:      "response_bytes_total",
		Help:      "Response body bytes written, by chi route pattern.",
	}, []string{"method", "route"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "resdex",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Requests currently being served.",
	})
)

// Middleware instruments every request. Series are keyed by the chi route
// pattern so /documents/{endpoint}/{uuid} stays one series for all uuids.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			code := strconv.Itoa(status)

			httpRequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
			httpResponseBytes.WithLabelValues(r.Method, route).Add(float64(ww.BytesWritten()))
		})
	}
}

func routePattern(r *http.Request) string {
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return unmatchedRoute
	}
	return normalizeRoute(rc.RoutePattern())
}

func normalizeRoute(route string) string {
	if route == "" {
		return unmatchedRoute
	}
	return route
}
