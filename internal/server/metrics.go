package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/lineagekit/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lineagekit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lineagekit_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lineagekit_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lineagekit_extractions_total",
			Help: "Total number of task extractions",
		},
		[]string{"source_type", "status"},
	)

	extractedTablesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lineagekit_extracted_tables_total",
			Help: "Total number of table references extracted",
		},
		[]string{"role"},
	)
)

// metricsMiddleware records request counts and latency by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// recordExtraction counts one extraction outcome.
func recordExtraction(md *core.Metadata, err error) {
	if err != nil {
		extractionsTotal.WithLabelValues(core.SourceNone.String(), "error").Inc()
		return
	}
	extractionsTotal.WithLabelValues(md.SourceType.String(), "success").Inc()
	extractedTablesTotal.WithLabelValues("input").Add(float64(len(md.Inputs)))
	extractedTablesTotal.WithLabelValues("output").Add(float64(len(md.Outputs)))
}
