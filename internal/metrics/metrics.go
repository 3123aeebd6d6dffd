// Package metrics exposes Prometheus collectors for the HTTP surface,
// propagation batches and access-window scans.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hermes_propagations_total",
			Help: "Element sets propagated in batches, by model and result.",
		},
		[]string{"model", "result"},
	)

	propagationBatchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hermes_propagation_batch_duration_seconds",
			Help:    "Wall time of one catalog propagation batch.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"model"},
	)

	scanSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hermes_window_scan_duration_seconds",
			Help:    "Wall time of one access-window search.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	windowsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hermes_windows_found_total",
			Help: "Access windows returned by window searches.",
		},
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hermes_catalog_element_sets",
			Help: "Number of element sets in the loaded catalog.",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hermes_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(propagationsTotal)
	prometheus.MustRegister(propagationBatchSeconds)
	prometheus.MustRegister(scanSeconds)
	prometheus.MustRegister(windowsFound)
	prometheus.MustRegister(catalogSize)
	prometheus.MustRegister(rateLimited)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch's outcome.
func RecordPropagation(model string, d time.Duration, ok, failed int) {
	propagationsTotal.WithLabelValues(model, "ok").Add(float64(ok))
	propagationsTotal.WithLabelValues(model, "error").Add(float64(failed))
	propagationBatchSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// RecordScan records one window search and the number of windows it found.
func RecordScan(d time.Duration, windows int) {
	scanSeconds.Observe(d.Seconds())
	windowsFound.Add(float64(windows))
}

// SetCatalogSize sets the loaded catalog gauge.
func SetCatalogSize(n int) {
	catalogSize.Set(float64(n))
}

// RecordRateLimited counts one rejected request.
func RecordRateLimited() {
	rateLimited.Inc()
}

// RegisterCacheStats exports propagation constants cache counters read
// from stats at scrape time. Registering twice returns the registry error.
func RegisterCacheStats(reg prometheus.Registerer, stats func() (hits, misses int64)) error {
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hermes_constants_cache_hits_total",
		Help: "Propagation constants served from the cache.",
	}, func() float64 {
		h, _ := stats()
		return float64(h)
	})
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hermes_constants_cache_misses_total",
		Help: "Propagation constants computed on a cache miss.",
	}, func() float64 {
		_, m := stats()
		return float64(m)
	})
	if err := reg.Register(hits); err != nil {
		return err
	}
	return reg.Register(misses)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// knownRoutes are exported as path labels verbatim.
var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/catalog":      true,
	"/api/v1/positions":    true,
	"/api/v1/propagate":    true,
	"/api/v1/windows":      true,
	"/api/v1/ephemeris":    true,
	"/api/v1/elements":     true,
	"/api/v1/cache/stats":  true,
	"/api/v1/observations": true,
}

// normalizeRoute maps a request path to a bounded label set.
// Catalog numbers collapse to one label and unknown paths to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, "/api/v1/catalog/"); ok && id != "" && !strings.Contains(id, "/") {
		return "/api/v1/catalog/{norad_id}"
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
