// Package metrics provides Prometheus metrics instrumentation for
// stophistoryd. All metrics are exposed via the /metrics HTTP endpoint for
// Prometheus scraping.
//
// Metrics exposed:
//   - stophistory_appends_total: Counter of append operations by status
//   - stophistory_reads_total: Counter of read operations by result
//   - stophistory_append_conflicts_total: Counter of optimistic-write conflicts
//   - stophistory_request_duration_seconds: Histogram of request durations by operation
//   - stophistory_day_history_length: Histogram of history lengths returned to readers
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AppendsTotal         *prometheus.CounterVec
	ReadsTotal           *prometheus.CounterVec
	AppendConflictsTotal prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
	DayHistoryLength     prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stophistory_appends_total",
			Help: "Total number of append operations by status",
		}, []string{"status"}),

		ReadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stophistory_reads_total",
			Help: "Total number of read operations by result",
		}, []string{"result"}),

		AppendConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stophistory_append_conflicts_total",
			Help: "Total number of appends that exhausted the conflict retry budget",
		}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stophistory_request_duration_seconds",
			Help:    "Duration of cache operations by kind",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		DayHistoryLength: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stophistory_day_history_length",
			Help:    "Number of events in day histories returned to readers",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

func (m *Metrics) RecordAppend(status string) {
	m.AppendsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordRead(result string) {
	m.ReadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordConflict() {
	m.AppendConflictsTotal.Inc()
}

func (m *Metrics) ObserveRequest(op string, seconds float64) {
	m.RequestDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) ObserveHistoryLength(n int) {
	m.DayHistoryLength.Observe(float64(n))
}
