package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
	OutcomeTransfer = "transfer_error"
	OutcomePending  = "pending"
)

// Metrics collects ledger operation metrics on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	operations    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	deposits      *prometheus.GaugeVec
	borrowed      *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lending",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations including the asset transfer.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lending",
			Name:      "compensating_transfers_total",
			Help:      "Reverse transfers issued after a failed commit, by result.",
		}, []string{"operation", "outcome"}),
		deposits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "pool_total_deposits",
			Help:      "Total deposits per pool after the last committed operation.",
		}, []string{"asset"}),
		borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lending",
			Name:      "pool_total_borrowed",
			Help:      "Total borrowed per pool after the last committed operation.",
		}, []string{"asset"}),
	}
	registry.MustRegister(m.operations, m.durations, m.compensations, m.deposits, m.borrowed)
	return m
}

func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.durations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCompensation(operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeTransfer
	}
	m.compensations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SetPoolTotals(asset string, deposits, borrowed uint64) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(asset).Set(float64(deposits))
	m.borrowed.WithLabelValues(asset).Set(float64(borrowed))
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
