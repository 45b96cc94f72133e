package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"
)

// Metrics provides Prometheus metrics for simulation runs. It records cache
// lookups and sun matrix statistics, so it can be handed to recipes as their
// recorder. A disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Cache metrics
	cacheLookups *prometheus.CounterVec

	// Sun matrix metrics
	sunMatrixBuilds *prometheus.CounterVec
	sunsRetained    prometheus.Counter
	sunsSkipped     prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"project"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of runs currently executing",
			},
		),

		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of command steps executed",
			},
			[]string{"stage", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of command step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"stage", "program"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of step errors by class and code",
			},
			[]string{"class", "code"},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of intermediate artifact cache lookups",
			},
			[]string{"kind", "result"},
		),

		sunMatrixBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sun_matrix_builds_total",
				Help:      "Total number of sun matrices built or reused",
			},
			[]string{"reused"},
		),
		sunsRetained: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suns_retained_total",
				Help:      "Total number of suns kept in generated sun matrices",
			},
		),
		sunsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suns_skipped_total",
				Help:      "Total number of requested hours without a usable sun",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration, m.activeRuns,
		m.stepsExecuted, m.stepDuration,
		m.errorsByClass,
		m.cacheLookups,
		m.sunMatrixBuilds, m.sunsRetained, m.sunsSkipped,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the registry holding every metric, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRunStarted records the start of a run.
func (m *Metrics) RecordRunStarted(project string) {
	if !m.enabled() {
		return
	}
	m.runsStarted.WithLabelValues(project).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records the completion of a run.
func (m *Metrics) RecordRunCompleted(status engine.RunStatus, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordStep records a finished command step and its error, if any.
func (m *Metrics) RecordStep(step *engine.CommandStep, duration time.Duration, err error) {
	if !m.enabled() {
		return
	}
	m.stepsExecuted.WithLabelValues(string(step.Stage), string(step.Status)).Inc()
	m.stepDuration.WithLabelValues(string(step.Stage), step.Program).Observe(duration.Seconds())
	if err == nil {
		return
	}
	class, code := "unknown", ""
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		class, code = string(ee.Class), ee.Code
	}
	m.errorsByClass.WithLabelValues(class, code).Inc()
}

// RecordCacheLookup records one intermediate artifact lookup.
func (m *Metrics) RecordCacheLookup(kind string, hit bool) {
	if !m.enabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordSunMatrix records a sun matrix build.
func (m *Metrics) RecordSunMatrix(retained, skipped int, reused bool) {
	if !m.enabled() {
		return
	}
	m.sunMatrixBuilds.WithLabelValues(strconv.FormatBool(reused)).Inc()
	if reused {
		return
	}
	m.sunsRetained.Add(float64(retained))
	m.sunsSkipped.Add(float64(skipped))
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer serves the metrics endpoint in the background. It does
// nothing when metrics are disabled or no listen address is configured.
func (m *Metrics) StartMetricsServer() (*http.Server, error) {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil, nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("address", m.config.ListenAddress).Str("path", path).Msg("Metrics server started")
	return server, nil
}
