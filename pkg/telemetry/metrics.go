package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for apt.
type Metrics struct {
	config MetricsConfig

	// API metrics
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiErrors   *prometheus.CounterVec

	// Cache metrics
	cacheRefetches *prometheus.CounterVec
	cacheObjects   *prometheus.GaugeVec

	// Session metrics
	selections *prometheus.CounterVec
	generated  *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of catalog API calls",
			},
			[]string{"operation", "status"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of catalog API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		apiErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of failed catalog API calls by error class",
			},
			[]string{"operation", "class"},
		),

		cacheRefetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_refetches_total",
				Help:      "Total number of cache refetches",
			},
			[]string{"result"},
		),
		cacheObjects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_objects",
				Help:      "Number of cached objects by kind",
			},
			[]string{"kind"},
		),

		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Total number of user selections by kind",
			},
			[]string{"kind"},
		),
		generated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "templates_generated_total",
				Help:      "Total number of generated template schemas by format",
			},
			[]string{"format"},
		),
	}

	registry.MustRegister(
		m.apiCalls,
		m.apiDuration,
		m.apiErrors,
		m.cacheRefetches,
		m.cacheObjects,
		m.selections,
		m.generated,
	)

	return m, nil
}

// RecordAPICall records a catalog API call. status is zero when no response
// was received.
func (m *Metrics) RecordAPICall(operation string, status int, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	label := "none"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.apiCalls.WithLabelValues(operation, label).Inc()
	m.apiDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIError records a failed API call by error class.
func (m *Metrics) RecordAPIError(operation, class string) {
	if m == nil || m.apiErrors == nil {
		return
	}
	if class == "" {
		class = "unknown"
	}
	m.apiErrors.WithLabelValues(operation, class).Inc()
}

// RecordRefetch records the outcome of a cache refetch.
func (m *Metrics) RecordRefetch(ok bool) {
	if m == nil || m.cacheRefetches == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.cacheRefetches.WithLabelValues(result).Inc()
}

// SetCacheObjects sets the number of cached objects of a kind.
func (m *Metrics) SetCacheObjects(kind string, count int) {
	if m == nil || m.cacheObjects == nil {
		return
	}
	m.cacheObjects.WithLabelValues(kind).Set(float64(count))
}

// RecordSelection records a hub, folder or template selection.
func (m *Metrics) RecordSelection(kind string) {
	if m == nil || m.selections == nil {
		return
	}
	m.selections.WithLabelValues(kind).Inc()
}

// RecordGenerate records a generated schema.
func (m *Metrics) RecordGenerate(format string) {
	if m == nil || m.generated == nil {
		return
	}
	m.generated.WithLabelValues(format).Inc()
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics. It is a no-op
// when metrics are disabled or no listen address is configured.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Metrics are optional; keep the application running
			logger.WithError(err).Warn("Metrics server stopped")
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
