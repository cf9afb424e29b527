package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches      *prometheus.CounterVec
	resolved     *prometheus.CounterVec
	lastValue    *prometheus.GaugeVec
	cache        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	breakerState *prometheus.GaugeVec
	sinkErrors   *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_upstream_fetches_total",
				Help: "Upstream fetch attempts by outcome (ok, error, out_of_range, breaker_open)",
			},
			[]string{"source", "indicator", "outcome"},
		),
		resolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_indicator_resolved_total",
				Help: "Resolved snapshot entries by provenance",
			},
			[]string{"indicator", "provenance"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "macropull_indicator_value",
				Help: "Last resolved value of an indicator",
			},
			[]string{"indicator"},
		),
		cache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_cache_requests_total",
				Help: "Read-through cache lookups by result (hit, miss, stale, error)",
			},
			[]string{"result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "macropull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "macropull_breaker_state",
				Help: "Circuit breaker state per upstream source (0 closed, 1 half-open, 2 open)",
			},
			[]string{"source"},
		),
		sinkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_sink_errors_total",
				Help: "Snapshot sink publish failures",
			},
			[]string{"sink"},
		),
	}
}

// RecordFetch records one upstream fetch outcome.
func (r *Recorder) RecordFetch(source, indicator, outcome string) {
	r.fetches.WithLabelValues(source, indicator, outcome).Inc()
}

// RecordResolved records the provenance of a resolved entry and its value.
func (r *Recorder) RecordResolved(indicator, provenance string, value *float64) {
	r.resolved.WithLabelValues(indicator, provenance).Inc()
	if value != nil {
		r.lastValue.WithLabelValues(indicator).Set(*value)
	}
}

func (r *Recorder) RecordCache(result string) {
	r.cache.WithLabelValues(result).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBreakerState(source string, state int) {
	r.breakerState.WithLabelValues(source).Set(float64(state))
}

func (r *Recorder) RecordSinkError(sink string) {
	r.sinkErrors.WithLabelValues(sink).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordFetch(string, string, string)      {}
func (Nop) RecordResolved(string, string, *float64) {}
func (Nop) RecordCache(string)                      {}
func (Nop) RecordLatency(string, float64)           {}
func (Nop) RecordBreakerState(string, int)          {}
func (Nop) RecordSinkError(string)                  {}
