package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush outcomes.
const (
	FlushOK     = "ok"
	FlushEmpty  = "empty"
	FlushFailed = "failed"
)

// Call outcomes.
const (
	CallFulfilled = "fulfilled"
	CallRejected  = "rejected"
	CallAborted   = "aborted"
	CallDiscarded = "discarded"
)

// Metrics collects Prometheus metrics for batches. A nil *Metrics records nothing.
type Metrics struct {
	flushes       *prometheus.CounterVec
	calls         *prometheus.CounterVec
	flushDuration prometheus.Histogram
	payloadBytes  prometheus.Histogram
}

// NewMetrics registers batch collectors with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "adt",
				Subsystem: "batch",
				Name:      "flushes_total",
				Help:      "Total number of batch flushes by outcome",
			},
			[]string{"outcome"},
		),
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "adt",
				Subsystem: "batch",
				Name:      "calls_total",
				Help:      "Total number of captured calls by resolution outcome",
			},
			[]string{"outcome"},
		),
		flushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "adt",
				Subsystem: "batch",
				Name:      "flush_duration_seconds",
				Help:      "Duration of batch flushes in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		payloadBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "adt",
				Subsystem: "batch",
				Name:      "payload_bytes",
				Help:      "Size of encoded batch request bodies in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
		),
	}
}

func (m *Metrics) observeFlush(outcome string, d time.Duration, payload int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(outcome).Inc()
	if outcome != FlushEmpty {
		m.flushDuration.Observe(d.Seconds())
		m.payloadBytes.Observe(float64(payload))
	}
}

func (m *Metrics) addCalls(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.calls.WithLabelValues(outcome).Add(float64(n))
}
