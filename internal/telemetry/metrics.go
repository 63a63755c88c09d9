// Package telemetry registers the Prometheus metrics exposed on the metrics
// listener and provides the HTTP instrumentation middleware.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Evaluations counts flag evaluations by decision reason class.
	Evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flag_evaluations_total",
		Help: "Flag evaluations by outcome",
	}, []string{"outcome"})

	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flag_cache_hits_total",
		Help: "Flag definition cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flag_cache_misses_total",
		Help: "Flag definition cache misses (including degraded errors)",
	})
	InvalidationsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flag_invalidations_received_total",
		Help: "Invalidation broadcasts received from the bus",
	})

	// StreamClients tracks currently connected SSE subscribers.
	StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_clients",
		Help: "Number of currently connected stream clients",
	})
)

// Init registers all metrics. Call once at startup.
func Init() {
	prometheus.MustRegister(httpReqs, httpDur, Evaluations, CacheHits,
		CacheMisses, InvalidationsReceived, StreamClients)
}

// Middleware records request counts and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
