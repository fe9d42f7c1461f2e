// Package metrics exposes Prometheus collectors for settlement activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	registry *prometheus.Registry

	solverRuns      *prometheus.CounterVec
	solverDuration  *prometheus.HistogramVec
	solverMembers   *prometheus.HistogramVec
	settleUps       *prometheus.CounterVec
	settleConflicts *prometheus.CounterVec
}

// New creates a registry with Go/process collectors and the settlement collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		solverRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "solver_runs_total",
			Help:      "Number of debt-solver runs by algorithm.",
		}, []string{"solver"}),
		solverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "solver_duration_seconds",
			Help:      "Time spent in the debt solver.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"solver"}),
		solverMembers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "splitledger",
			Name:      "solver_members",
			Help:      "Unmatched nonzero balances handed to the solver.",
			Buckets:   []float64{2, 4, 6, 8, 10, 15, 25, 50, 100},
		}, []string{"solver"}),
		settleUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "settle_ups_total",
			Help:      "Confirmed settle-ups by kind.",
		}, []string{"kind"}),
		settleConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitledger",
			Name:      "settle_up_conflicts_total",
			Help:      "Settle-up confirmations rejected because balances moved since the preview.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.solverRuns, m.solverDuration, m.solverMembers, m.settleUps, m.settleConflicts)
	return m
}

// ObserveSolver records one solver run.
func (m *Metrics) ObserveSolver(solver string, members int, elapsed time.Duration) {
	m.solverRuns.WithLabelValues(solver).Inc()
	m.solverDuration.WithLabelValues(solver).Observe(elapsed.Seconds())
	m.solverMembers.WithLabelValues(solver).Observe(float64(members))
}

// SettleUpConfirmed counts a persisted settle-up. kind is "single" or "group".
func (m *Metrics) SettleUpConfirmed(kind string) {
	m.settleUps.WithLabelValues(kind).Inc()
}

// SettleUpConflict counts a confirmation rejected by the integrity check.
func (m *Metrics) SettleUpConflict(kind string) {
	m.settleConflicts.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
