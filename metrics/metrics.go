// Package metrics backs the HTTP API's /metrics (JSON) and /prometheus
// (text) routes with the counters and histograms C8 requires: total
// requests, daemon start time, daemon memory/CPU histograms, and
// per-route latency.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	routeLatency      *prometheus.HistogramVec
	daemonStartTime   prometheus.Gauge
	daemonMemoryBytes prometheus.Histogram
	daemonCPUPercent  prometheus.Histogram
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes every collector. Primarily for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	reqTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pmc",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled by the control API.",
	}, []string{"route", "method", "code"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pmc",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of HTTP control API requests, labelled by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	startTime := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pmc",
		Subsystem: "daemon",
		Name:      "start_time_seconds",
		Help:      "Unix time the daemon started.",
	})

	memHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pmc",
		Subsystem: "daemon",
		Name:      "memory_bytes",
		Help:      "Sampled daemon resident memory usage in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1<<20, 2, 12), // 1MiB..2GiB
	})

	cpuHist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pmc",
		Subsystem: "daemon",
		Name:      "cpu_percent",
		Help:      "Sampled instantaneous daemon CPU percent over a 100ms window.",
		Buckets:   []float64{1, 5, 10, 25, 50, 75, 100, 200, 400, 800},
	})

	registry.MustRegister(reqTotal, latency, startTime, memHist, cpuHist)

	reg = registry
	httpRequestsTotal = reqTotal
	routeLatency = latency
	daemonStartTime = startTime
	daemonMemoryBytes = memHist
	daemonCPUPercent = cpuHist

	startTime.Set(float64(time.Now().Unix()))
}

// Handler returns the Prometheus text-exposition HTTP handler for the
// /prometheus route.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP control API request.
func ObserveRequest(route, method string, code int, duration time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	httpRequestsTotal.WithLabelValues(route, method, statusLabel(code)).Inc()
	routeLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveDaemonSample records one daemon-wide resource sample into the
// daemon memory and CPU histograms exposed on /prometheus. The JSON /metrics
// and /list routes take their own samples and do not read these histograms.
func ObserveDaemonSample(memoryBytes uint64, cpuPercent float64) {
	mu.RLock()
	defer mu.RUnlock()
	daemonMemoryBytes.Observe(float64(memoryBytes))
	daemonCPUPercent.Observe(cpuPercent)
}

func statusLabel(code int) string {
	switch {
	case code <= 0:
		return "error"
	default:
		return http.StatusText(code)
	}
}

// Middleware wraps next, observing request latency and counts per route.
// routeName should be the logical route template (e.g. "/process/{id}/info"),
// not the expanded path, to keep cardinality bounded.
func Middleware(routeName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		ObserveRequest(routeName, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
