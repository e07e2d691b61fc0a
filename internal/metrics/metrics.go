package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spendguard"

var (
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_ingested_total",
			Help:      "Billed events recorded in the ledger",
		},
	)

	DuplicateEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "duplicate_events_total",
			Help:      "Events deduplicated by idempotency key",
		},
	)

	SkippedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "skipped_events_total",
			Help:      "Zero-cost events accepted but not recorded",
		},
	)

	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "alerts_fired_total",
			Help:      "Hourly limit alerts claimed and dispatched",
		},
	)

	NotifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Alert deliveries that failed, per channel",
		},
		[]string{"channel"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end time to process one billed event",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)
