package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the aggregation module.
type Metrics struct {
	// Upstream fetch latencies by source and outcome
	FetchLatency *prometheus.HistogramVec

	// Per-source outcomes (ok, timeout, error, not_found)
	SourceOutcome *prometheus.CounterVec

	// Aggregation results by kind (entity, date) and result (ok, partial, failed)
	AggregationOutcome *prometheus.CounterVec

	// Overall aggregation latency
	AggregateLatency prometheus.Histogram

	// Cache hits/misses by kind
	CacheLookups *prometheus.CounterVec

	// Merge conflicts detected
	MergeConflicts prometheus.Counter

	// Upstream retries attempted
	Retries *prometheus.CounterVec
}

// New creates a Metrics instance with all aggregation metrics registered.
func New() *Metrics {
	return &Metrics{
		FetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "konkurs_upstream_fetch_duration_seconds",
			Help:    "Duration of upstream fetches by source",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}), // source: "registry", "feed", "lawyer"

		SourceOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konkurs_upstream_outcomes_total",
			Help: "Total upstream call outcomes by source and status",
		}, []string{"source", "status"}),

		AggregationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konkurs_aggregation_outcomes_total",
			Help: "Total aggregations by request kind and result",
		}, []string{"kind", "result"}),

		AggregateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "konkurs_aggregation_duration_seconds",
			Help:    "Duration of full aggregations including upstream fan-out",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konkurs_cache_lookups_total",
			Help: "Cache lookups by request kind and result (hit, miss)",
		}, []string{"kind", "result"}),

		MergeConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "konkurs_merge_conflicts_total",
			Help: "Total field conflicts detected during merges",
		}),

		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "konkurs_upstream_retries_total",
			Help: "Upstream retries attempted by source",
		}, []string{"source"}),
	}
}

// ObserveFetch records the duration of one upstream fetch.
func (m *Metrics) ObserveFetch(source string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

// IncrementSourceOutcome records one upstream call outcome.
func (m *Metrics) IncrementSourceOutcome(source, status string) {
	if m != nil {
		m.SourceOutcome.WithLabelValues(source, status).Inc()
	}
}

// IncrementAggregation records one finished aggregation.
func (m *Metrics) IncrementAggregation(kind, result string) {
	if m != nil {
		m.AggregationOutcome.WithLabelValues(kind, result).Inc()
	}
}

// ObserveAggregateLatency records the total aggregation duration.
func (m *Metrics) ObserveAggregateLatency(d time.Duration) {
	if m != nil {
		m.AggregateLatency.Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a cache hit or miss.
func (m *Metrics) IncrementCacheLookup(kind, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(kind, result).Inc()
	}
}

// AddMergeConflicts records detected merge conflicts.
func (m *Metrics) AddMergeConflicts(n int) {
	if m != nil && n > 0 {
		m.MergeConflicts.Add(float64(n))
	}
}

// IncrementRetry records one upstream retry.
func (m *Metrics) IncrementRetry(source string) {
	if m != nil {
		m.Retries.WithLabelValues(source).Inc()
	}
}
