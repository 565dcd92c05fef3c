// Package metrics exposes Prometheus instruments for the payment engine.
// All methods are safe on a nil *Metrics so callers can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billstack"

// Payment outcomes.
const (
	OutcomePaid                 = "paid"
	OutcomeDuplicate            = "duplicate"
	OutcomeInstallmentsComplete = "installments_complete"
	OutcomeNoAccount            = "no_account"
	OutcomeFailed               = "failed"
)

type Metrics struct {
	payments      *prometheus.CounterVec
	undos         *prometheus.CounterVec
	orphanRepairs *prometheus.CounterVec
	sagaDuration  prometheus.Histogram
	balanceDrift  prometheus.Gauge
	gatherer      prometheus.Gatherer
}

// New registers the instruments on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_payments_total",
			Help:      "Bill payment attempts by outcome.",
		}, []string{"outcome"}),
		undos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_payment_undos_total",
			Help:      "Bill payment undo attempts by result.",
		}, []string{"result"}),
		orphanRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_repairs_total",
			Help:      "Orphaned bill transactions repaired, by action.",
		}, []string{"action"}),
		sagaDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_saga_duration_seconds",
			Help:      "Time to run a mark-as-paid saga.",
			Buckets:   prometheus.DefBuckets,
		}),
		balanceDrift: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_with_balance_drift",
			Help:      "Accounts whose balance disagrees with their transactions at the last audit.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.payments, m.undos, m.orphanRepairs, m.sagaDuration, m.balanceDrift)
	return m
}

func (m *Metrics) ObservePayment(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
	m.sagaDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveUndo(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.undos.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRepair(action string) {
	if m == nil {
		return
	}
	m.orphanRepairs.WithLabelValues(action).Inc()
}

func (m *Metrics) SetBalanceDrift(n int) {
	if m == nil {
		return
	}
	m.balanceDrift.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
