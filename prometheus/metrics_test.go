package prometheus_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/breaker"
	egressprom "github.com/fwojciec/egress/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveFetch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := egressprom.NewMetrics(reg)

	m.ObserveFetch("docs.example.com", "GET", egress.OutcomeOK, 120*time.Millisecond)
	m.ObserveFetch("docs.example.com", "GET", egress.OutcomeOK, 80*time.Millisecond)
	m.ObserveFetch("docs.example.com", "GET", egress.OutcomeTimeout, 8*time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("docs.example.com", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("docs.example.com", "timeout")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.FetchDuration))
}

func TestMetrics_ObserveStateChange(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := egressprom.NewMetrics(reg)
	registry := breaker.NewRegistry(
		breaker.WithDefaults(egress.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}),
		breaker.WithStateChange(m.ObserveStateChange),
	)

	err := registry.Execute(context.Background(), "gemini", func(ctx context.Context) error {
		return egress.Errorf(egress.ETRANSIENT, "boom")
	})
	require.Error(t, err)

	assert.InDelta(t, float64(egress.CircuitOpen), testutil.ToFloat64(m.CircuitState.WithLabelValues("gemini")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CircuitTransitions.WithLabelValues("gemini", "OPEN")), 0)
}

func TestNewMetrics_RegistersOnRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := egressprom.NewMetrics(reg)
	m.ObserveFetch("a.example", "HEAD", egress.OutcomeBlocked, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "egress_fetch_total")
	assert.Contains(t, names, "egress_fetch_duration_seconds")
}
