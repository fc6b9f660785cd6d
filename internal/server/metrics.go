// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// askTotal counts completed /ask requests, partitioned by outcome:
	// "ok", "unavailable", or "error".
	askTotal *prometheus.CounterVec

	// askDuration records the wall-clock duration of each /ask request,
	// covering embedding, retrieval, and LLM generation.
	askDuration *prometheus.HistogramVec

	// uploadsTotal counts /upload requests, partitioned by outcome:
	// "accepted", "rejected", "queue_full", or "error".
	uploadsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scichat",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scichat",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /ask requests including embedding, retrieval, and generation.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scichat",
			Subsystem: "upload",
			Name:      "requests_total",
			Help:      "Total number of /upload requests, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scichat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, route, and status code.",
		}, []string{"method", "route", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scichat",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// instrument is an HTTP middleware recording per-request counters and
// latency for every route, including static assets.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routeLabel collapses parameterized and static paths into a bounded set of
// label values so per-conversation IDs and asset names never explode the
// metric cardinality.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/conversations/"):
		return "/conversations/{id}"
	case path == "/upload", path == "/ask", path == "/documents", path == "/uploads",
		path == "/api/health", path == "/api/ready", path == "/metrics":
		return path
	default:
		return "/static"
	}
}
