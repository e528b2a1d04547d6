// Package prometheus exports egress activity as Prometheus metrics.
package prometheus

import (
	"time"

	"github.com/fwojciec/egress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "egress"

var _ egress.FetchObserver = (*Metrics)(nil)

// Metrics holds the outbound call metrics.
type Metrics struct {
	// Fetch metrics
	FetchDuration *prometheus.HistogramVec
	FetchesTotal  *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitState       *prometheus.GaugeVec
	CircuitTransitions *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Latency of outbound fetches, including politeness waits.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"host", "method", "outcome"},
		),
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "fetch",
				Name:      "total",
				Help:      "Outbound fetches by outcome.",
			},
			[]string{"host", "outcome"},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"key"},
		),
		CircuitTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "circuit_breaker",
				Name:      "transitions_total",
				Help:      "Circuit breaker state transitions.",
			},
			[]string{"key", "to"},
		),
	}
}

// ObserveFetch records one fetch.
func (m *Metrics) ObserveFetch(host, method string, outcome egress.FetchOutcome, d time.Duration) {
	m.FetchDuration.WithLabelValues(host, method, string(outcome)).Observe(d.Seconds())
	m.FetchesTotal.WithLabelValues(host, string(outcome)).Inc()
}

// ObserveStateChange records a breaker transition. Its signature matches
// breaker.StateChangeFunc.
func (m *Metrics) ObserveStateChange(key string, _, to egress.CircuitState) {
	m.CircuitState.WithLabelValues(key).Set(float64(to))
	m.CircuitTransitions.WithLabelValues(key, to.String()).Inc()
}
