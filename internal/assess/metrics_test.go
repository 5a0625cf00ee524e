package assess

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func Test_NewMetrics_RegistersUnderPrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "arns_observer_probe_duration_seconds" {
			found = true
		}
	}
	require.True(t, found, "expected arns_observer_probe_duration_seconds to be registered")
}

func Test_Metrics_NilReceiverNeverPanics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.observeOwnership(true)
		m.observeNameAssessment(false)
		m.observeCacheHit(true)
		m.observeProbeDuration(1.5)
		m.observeReportDuration(2.5)
	})
}

func Test_Metrics_ObservationsIncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeOwnership(true)
	m.observeOwnership(false)
	m.observeNameAssessment(true)

	families, err := reg.Gather()
	require.NoError(t, err)

	var ownershipTotal float64
	for _, f := range families {
		if f.GetName() != "arns_observer_ownership_outcome_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			ownershipTotal += metric.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), ownershipTotal)
}
