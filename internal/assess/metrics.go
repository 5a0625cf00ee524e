package assess

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds every collector the assessment engine publishes. It is
// safe for nil: a nil *Metrics silently drops every observation, so
// callers that don't care about metrics (unit tests, in particular)
// never need to construct one.
type Metrics struct {
	probeDuration    prometheus.Histogram
	ownershipOutcome *prometheus.CounterVec
	nameOutcome      *prometheus.CounterVec
	cacheOutcome     *prometheus.CounterVec
	reportDuration   prometheus.Histogram
}

// NewMetrics registers every observer collector on reg, prefixed
// "arns_observer_", and mirrors the teacher's pattern of also attaching
// the standard process/Go collectors so /metrics is self-sufficient.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	wrapped := prometheus.WrapRegistererWithPrefix("arns_observer_", reg)
	wrapped.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	wrapped.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "probe_duration_seconds",
			Help:    "Duration of a single name-resolution probe.",
			Buckets: prometheus.DefBuckets,
		}),
		ownershipOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ownership_outcome_total",
			Help: "Count of gateway ownership checks by pass/fail.",
		}, []string{"result"}),
		nameOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "name_assessment_outcome_total",
			Help: "Count of per-name assessments by pass/fail.",
		}, []string{"result"}),
		cacheOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_cache_outcome_total",
			Help: "Count of reference-cache lookups by hit/miss.",
		}, []string{"result"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "report_duration_seconds",
			Help:    "Wall-clock duration of a full GenerateReport run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	wrapped.MustRegister(m.probeDuration, m.ownershipOutcome, m.nameOutcome, m.cacheOutcome, m.reportDuration)
	return m
}

func (m *Metrics) observeOwnership(pass bool) {
	if m == nil {
		return
	}
	m.ownershipOutcome.WithLabelValues(resultLabel(pass)).Inc()
}

func (m *Metrics) observeNameAssessment(pass bool) {
	if m == nil {
		return
	}
	m.nameOutcome.WithLabelValues(resultLabel(pass)).Inc()
}

func (m *Metrics) observeCacheHit(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.cacheOutcome.WithLabelValues(label).Inc()
}

func (m *Metrics) observeProbeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.probeDuration.Observe(seconds)
}

func (m *Metrics) observeReportDuration(seconds float64) {
	if m == nil {
		return
	}
	m.reportDuration.Observe(seconds)
}

func resultLabel(pass bool) string {
	if pass {
		return "pass"
	}
	return "fail"
}
