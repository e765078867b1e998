package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
)

//nolint:gochecknoglobals // prometheus collectors
var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tokenledger",
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Transfer events handled by the engine, by outcome",
		},
		[]string{"outcome"},
	)

	HoldersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokenledger",
			Subsystem: "engine",
			Name:      "holders_created_total",
			Help:      "Holder aggregates created on first touch",
		},
	)

	ProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tokenledger",
			Subsystem: "engine",
			Name:      "process_duration_seconds",
			Help:      "Time to apply and commit a single transfer event",
			Buckets:   prometheus.DefBuckets,
		},
	)

	RunnerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tokenledger",
			Subsystem: "runner",
			Name:      "retries_total",
			Help:      "Event applications retried after a store failure",
		},
	)

	LastBlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tokenledger",
			Subsystem: "runner",
			Name:      "last_block",
			Help:      "Block number of the last applied transfer event",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		HoldersCreated,
		ProcessDuration,
		RunnerRetries,
		LastBlock,
	)
}
