// Package metrics holds the Prometheus collectors for funnel operations.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "funnel"

type Metrics struct {
	// Operations counts funnel calls by operation and result (ok, error).
	Operations *prometheus.CounterVec
	// Duration observes call latency by operation.
	Duration *prometheus.HistogramVec
	// DustReturned counts executions that left unused tokens, by operation.
	DustReturned *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Funnel operations by operation and result",
			},
			[]string{"op", "result"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Funnel operation latency",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"op"},
		),
		DustReturned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dust_returned_total",
				Help:      "Executions that returned unused tokens to the caller",
			},
			[]string{"op"},
		),
	}
}

// Observe records one call of op that started at start and ended with err.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Dust counts op once if any of amounts is non-zero.
func (m *Metrics) Dust(op string, amounts ...*uint256.Int) {
	if m == nil {
		return
	}
	for _, a := range amounts {
		if !a.IsZero() {
			m.DustReturned.WithLabelValues(op).Inc()
			return
		}
	}
}
