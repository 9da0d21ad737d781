package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainstate"

// Read outcomes.
const (
	ReadIssued      = "issued"
	ReadFresh       = "fresh"
	ReadShared      = "shared"
	ReadLoaded      = "loaded"
	ReadFailed      = "failed"
	ReadEncodeError = "encode_error"
)

// Metrics groups the collectors of the coordination layer.
type Metrics struct {
	Reads        *prometheus.CounterVec
	ReadRetries  prometheus.Counter
	ReadLatency  prometheus.Histogram
	ClockTicks   prometheus.Counter
	TickReads    prometheus.Histogram
	Transactions *prometheus.CounterVec
	Signatures   *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and library users without an
// exporter want.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Reads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "calls",
				Name:      "reads_total",
				Help:      "Contract reads by outcome",
			},
			[]string{"outcome"},
		),
		ReadRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "retries_total",
			Help:      "Read attempts retried after a failure",
		}),
		ReadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calls",
			Name:      "read_latency_seconds",
			Help:      "Latency of a single read attempt",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ClockTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clock",
			Name:      "ticks_total",
			Help:      "Refresh clock ticks processed",
		}),
		TickReads: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "clock",
			Name:      "reads_per_tick",
			Help:      "Deduplicated reads issued per tick",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tx",
				Name:      "transitions_total",
				Help:      "Transaction state transitions by target status",
			},
			[]string{"status"},
		),
		Signatures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sign",
				Name:      "requests_total",
				Help:      "Signature requests by flavor and final state",
			},
			[]string{"flavor", "state"},
		),
	}
}
