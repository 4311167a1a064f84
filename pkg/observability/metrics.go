package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Pipeline metrics
	EventsIngestedTotal    *prometheus.CounterVec
	AggregationRunsTotal   *prometheus.CounterVec
	AggregationDuration    prometheus.Histogram
	AggregatedEventsTotal  prometheus.Counter
	PerformanceScore       prometheus.Gauge
	RetentionCleanupsTotal *prometheus.CounterVec

	// Alerting metrics
	AlertsFiredTotal   *prometheus.CounterVec
	AlertsActive       prometheus.Gauge
	NotificationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_store_operations_total",
				Help: "Total number of key-value store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funnel_store_operation_duration_seconds",
				Help:    "Key-value store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "backend"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_store_errors_total",
				Help: "Total number of key-value store errors",
			},
			[]string{"operation", "backend"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_cache_hits_total",
				Help: "Total number of read-through cache hits",
			},
			[]string{"key_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_cache_misses_total",
				Help: "Total number of read-through cache misses",
			},
			[]string{"key_type"},
		),

		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_events_ingested_total",
				Help: "Total number of raw telemetry events received",
			},
			[]string{"status"},
		),
		AggregationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_aggregation_runs_total",
				Help: "Total number of daily aggregation runs",
			},
			[]string{"status"},
		),
		AggregationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "funnel_aggregation_duration_seconds",
				Help:    "Daily aggregation duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
			},
		),
		AggregatedEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "funnel_aggregated_events_total",
				Help: "Total number of raw events folded into daily summaries",
			},
		),
		PerformanceScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "funnel_performance_score",
				Help: "Performance score of the most recently aggregated day",
			},
		),
		RetentionCleanupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_retention_cleanups_total",
				Help: "Total number of raw event retention deletes",
			},
			[]string{"status"},
		),

		AlertsFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_alerts_fired_total",
				Help: "Total number of conversion alerts fired",
			},
			[]string{"rule", "severity"},
		),
		AlertsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "funnel_alerts_active",
				Help: "Number of currently active conversion alerts",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funnel_notifications_total",
				Help: "Total number of alert notification deliveries",
			},
			[]string{"channel", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsIngestedTotal,
		m.AggregationRunsTotal,
		m.AggregationDuration,
		m.AggregatedEventsTotal,
		m.PerformanceScore,
		m.RetentionCleanupsTotal,
		m.AlertsFiredTotal,
		m.AlertsActive,
		m.NotificationsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled with the matched mux route template so that dates in
// paths do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
