package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the engine.
type Metrics struct {
	runs            *prometheus.CounterVec
	runsFailed      *prometheus.CounterVec
	nodeOutcomes    *prometheus.CounterVec
	nodeDuration    *prometheus.HistogramVec
	activeWorkflows prometheus.Gauge
	inFlight        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers the collectors on reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoflow_runs_total",
				Help: "Total number of workflow runs, by mode",
			},
			[]string{"mode"},
		),
		runsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoflow_runs_with_failures_total",
				Help: "Runs in which at least one node failed, by mode",
			},
			[]string{"mode"},
		),
		nodeOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoflow_node_outcomes_total",
				Help: "Node executions by capability and status",
			},
			[]string{"capability", "status"},
		),
		nodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoflow_node_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"capability"},
		),
		activeWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoflow_active_workflows",
			Help: "Workflows with a live schedule",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoflow_runs_in_flight",
			Help: "Runs currently executing",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.runs, m.runsFailed, m.nodeOutcomes, m.nodeDuration, m.activeWorkflows, m.inFlight)
	return m
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunStart: func(ctx context.Context, e *domain.RunEvent) {
			m.runs.WithLabelValues(string(e.Mode)).Inc()
			m.inFlight.Inc()
		},
		OnRunComplete: func(ctx context.Context, e *domain.RunEvent) {
			m.inFlight.Dec()
			if e.Report != nil && e.Report.Failed() {
				m.runsFailed.WithLabelValues(string(e.Mode)).Inc()
			}
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Outcome == nil {
				return
			}
			m.nodeOutcomes.WithLabelValues(string(e.Capability), string(e.Outcome.Status)).Inc()
			m.nodeDuration.WithLabelValues(string(e.Capability)).Observe(e.Outcome.Duration.Seconds())
		},
	}
}

// SetActiveWorkflows updates the active schedule gauge.
func (m *Metrics) SetActiveWorkflows(n int) {
	m.activeWorkflows.Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
