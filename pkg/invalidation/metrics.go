package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for invalidation processing.
var (
	invalidationEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_invalidation_events_total",
		Help: "Total invalidation events processed by event key",
	}, []string{"event"})

	invalidationEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_invalidation_entries_total",
		Help: "Total cache entries removed by invalidation rules by cache",
	}, []string{"cache"})

	invalidationRuleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_invalidation_rule_errors_total",
		Help: "Total invalidation rule failures by rule",
	}, []string{"rule"})

	invalidationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_invalidation_queue_depth",
		Help: "Number of invalidation events waiting to be processed",
	})

	invalidationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_invalidation_duration_seconds",
		Help:    "Time to fully apply one invalidation event",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
	}, []string{"event"})

	invalidationBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_invalidation_broadcasts_total",
		Help: "Invalidation events exchanged with other instances by direction and result",
	}, []string{"direction", "result"}) // "sent"/"received", "ok"/"error"/"skipped"
)
