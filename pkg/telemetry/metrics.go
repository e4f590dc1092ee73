package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cronverge/cronverge/pkg/engine"
)

// Metrics provides Prometheus metrics for cronverge. All record methods are
// safe to call on a disabled instance; they become no-ops.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// Action metrics
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	actionRetries  *prometheus.CounterVec

	// Observation metrics
	observationsTotal *prometheus.CounterVec

	// Drift metrics
	driftDetected *prometheus.CounterVec

	// Provider metrics
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

var _ engine.MetricsRecorder = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of convergence runs by final status",
			},
			[]string{"status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of convergence runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of applied actions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of individual actions in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		actionRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_retries_total",
				Help:      "Total number of action retry attempts by kind",
			},
			[]string{"kind"},
		),

		observationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_total",
				Help:      "Total number of state observations by result",
			},
			[]string{"result"},
		),

		driftDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detected_total",
				Help:      "Total number of runs where live state diverged from the desired document",
			},
			[]string{"deployment"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of cloud provider API calls by operation and result",
			},
			[]string{"operation", "result"},
		),

		providerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Duration of cloud provider API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of convergence runs currently in progress",
			},
		),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.actionsTotal,
		m.actionDuration,
		m.actionRetries,
		m.observationsTotal,
		m.driftDetected,
		m.providerCalls,
		m.providerDuration,
		m.activeRuns,
	)

	return m, nil
}

// RecordRun records the outcome of a completed convergence run. A run whose
// plan contained any mutating action counts as drift.
func (m *Metrics) RecordRun(report *engine.ConvergenceReport) {
	if m.registry == nil || report == nil {
		return
	}
	status := string(report.Status)
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(report.Duration.Seconds())
	if report.Summary.Total > report.Summary.Noop {
		m.driftDetected.WithLabelValues(report.Deployment).Inc()
	}
}

// RecordAction records the outcome of a single applied action.
func (m *Metrics) RecordAction(result engine.ActionResult) {
	if m.registry == nil {
		return
	}
	kind := string(result.Action.Kind)
	m.actionsTotal.WithLabelValues(kind, string(result.Outcome)).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(result.Duration.Seconds())
}

// RecordRetry records a retry attempt for an action kind.
func (m *Metrics) RecordRetry(kind engine.ActionKind) {
	if m.registry == nil {
		return
	}
	m.actionRetries.WithLabelValues(string(kind)).Inc()
}

// RecordObservation records a state observation attempt.
func (m *Metrics) RecordObservation(deployment string, err error) {
	if m.registry == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.observationsTotal.WithLabelValues(result).Inc()
}

// RecordProviderCall records a cloud provider API call. Failed calls are
// labelled with their error class so throttling shows up separately from
// hard failures.
func (m *Metrics) RecordProviderCall(operation string, err error, duration time.Duration) {
	if m.registry == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(engine.Classify(err))
	}
	m.providerCalls.WithLabelValues(operation, result).Inc()
	m.providerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RunStarted marks a convergence run as in progress.
func (m *Metrics) RunStarted() {
	if m.registry == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished marks a convergence run as no longer in progress.
func (m *Metrics) RunFinished() {
	if m.registry == nil {
		return
	}
	m.activeRuns.Dec()
}

// Timer measures the duration of an operation.
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

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// It blocks until the server stops, so callers run it in a goroutine.
func (m *Metrics) StartMetricsServer() error {
	if m.registry == nil {
		return nil
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
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("address", m.config.ListenAddress).Str("path", path).Msg("Metrics server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
