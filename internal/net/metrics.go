package net

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeTerminal  = "terminal"
	OutcomeRetryable = "retryable"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

// Metrics records retry wrapper activity. A nil *Metrics records nothing.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Outcomes *prometheus.CounterVec
	InFlight prometheus.Gauge
}

// NewMetrics creates the retry metrics and registers them on reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsync_request_attempts_total",
			Help: "Request attempts by operation and classification",
		}, []string{"operation", "result"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptsync_operations_total",
			Help: "Finished operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "receiptsync_operations_in_flight",
			Help: "Operations submitted and not yet completed",
		}),
	}
}

func (m *Metrics) attempt(op, result string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) finished(op, outcome string) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Outcomes.WithLabelValues(op, outcome).Inc()
}
