package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for ChangeGuard.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Evaluation metrics
	violationsFound    *prometheus.CounterVec
	resourcesEvaluated prometheus.Counter

	// Rule set metrics
	rulesLoaded prometheus.Gauge
	ruleReloads *prometheus.CounterVec

	// Parse metrics
	changeSetsParsed *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

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

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of evaluation runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of evaluation runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of evaluation runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		violationsFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "violations_total",
				Help:      "Total number of rule violations found",
			},
			[]string{"rule", "severity"},
		),
		resourcesEvaluated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_evaluated_total",
				Help:      "Total number of resource changes evaluated",
			},
		),

		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "rules_loaded",
				Help:      "Current number of loaded rules",
			},
		),
		ruleReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_reloads_total",
				Help:      "Total number of rule set reloads",
			},
			[]string{"status"},
		),

		changeSetsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "change_sets_parsed_total",
				Help:      "Total number of change sets parsed",
			},
			[]string{"status"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active evaluation runs",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.violationsFound,
		m.resourcesEvaluated,
		m.rulesLoaded,
		m.ruleReloads,
		m.changeSetsParsed,
		m.activeRuns,
	)

	return m, nil
}

// Run Metrics

// RunStarted increments the counter for started runs.
func (m *Metrics) RunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RunCompleted records a completed run with its status and duration.
func (m *Metrics) RunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Evaluation Metrics

// ViolationFound records one violation by rule and severity.
func (m *Metrics) ViolationFound(ruleID, severity string) {
	if m.violationsFound == nil {
		return
	}
	m.violationsFound.WithLabelValues(ruleID, severity).Inc()
}

// ResourcesEvaluated adds to the evaluated resource counter.
func (m *Metrics) ResourcesEvaluated(count int) {
	if m.resourcesEvaluated == nil {
		return
	}
	m.resourcesEvaluated.Add(float64(count))
}

// Rule Set Metrics

// SetRulesLoaded sets the current number of loaded rules.
func (m *Metrics) SetRulesLoaded(count int) {
	if m.rulesLoaded == nil {
		return
	}
	m.rulesLoaded.Set(float64(count))
}

// RuleReload records a rule set reload attempt.
func (m *Metrics) RuleReload(status string) {
	if m.ruleReloads == nil {
		return
	}
	m.ruleReloads.WithLabelValues(status).Inc()
}

// Parse Metrics

// ChangeSetParsed records a change set parse attempt.
func (m *Metrics) ChangeSetParsed(status string) {
	if m.changeSetsParsed == nil {
		return
	}
	m.changeSetsParsed.WithLabelValues(status).Inc()
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
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

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
