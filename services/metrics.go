package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the business counters exported on /metrics
type Metrics struct {
	OrdersCreated    prometheus.Counter
	OrderTransitions *prometheus.CounterVec
	PaymentsRecorded *prometheus.CounterVec
}

// Payment outcomes used as the "outcome" label
const (
	OutcomeCredited  = "credited"
	OutcomeDuplicate = "duplicate"
	OutcomeFlagged   = "flagged"
	OutcomeRejected  = "rejected"
)

// NewMetrics creates the counters and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Number of orders created.",
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Number of order status transitions.",
		}, []string{"from", "to"}),
		PaymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_recorded_total",
			Help: "Number of provider payment confirmations processed, by outcome.",
		}, []string{"type", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.OrdersCreated, m.OrderTransitions, m.PaymentsRecorded)
	}
	return m
}

func (m *Metrics) orderCreated() {
	if m == nil {
		return
	}
	m.OrdersCreated.Inc()
}

func (m *Metrics) transition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.OrderTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) payment(paymentType, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsRecorded.WithLabelValues(paymentType, outcome).Inc()
}
