// Package metrics exposes the Prometheus registry shared by the dashboard
// cache packages. Metrics are defined next to the code that updates them
// (cache, invalidation) via promauto and land in Registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all dashboard cache metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in Gatherer in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewRegistry returns an isolated registry with Go runtime and process
// collectors, for embedding the cache in a service that keeps its own
// metrics separate.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - dashboard_cache_hits_total{cache} (Counter): Cache hits by named cache
//   - dashboard_cache_misses_total{cache} (Counter): Cache misses by named cache
//   - dashboard_cache_sets_total{cache} (Counter): Writes by named cache
//   - dashboard_cache_evictions_total{cache, reason} (Counter): Removals by reason (expired, capacity, deleted, cleared)
//   - dashboard_cache_entries{cache} (Gauge): Live entries by named cache
//   - dashboard_cache_errors_total{operation} (Counter): Cache operation errors
//
// Invalidation Metrics (pkg/invalidation):
//   - dashboard_invalidation_events_total{event} (Counter): Events applied by key
//   - dashboard_invalidation_entries_total{cache} (Counter): Entries removed by rules
//   - dashboard_invalidation_rule_errors_total{rule} (Counter): Failed rules
//   - dashboard_invalidation_queue_depth (Gauge): Events waiting in the queue
//   - dashboard_invalidation_duration_seconds{event} (Histogram): Time to apply one event
//   - dashboard_invalidation_broadcasts_total{direction, result} (Counter): Redis fan-out messages
//
// Example Prometheus Queries:
//
//   # Hit Rate per Cache
//   sum by (cache) (rate(dashboard_cache_hits_total[5m])) /
//   (sum by (cache) (rate(dashboard_cache_hits_total[5m])) + sum by (cache) (rate(dashboard_cache_misses_total[5m])))
//
//   # Capacity Pressure
//   rate(dashboard_cache_evictions_total{reason="capacity"}[5m])
//
//   # Invalidation Backlog
//   dashboard_invalidation_queue_depth > 100
//
//   # P95 Invalidation Latency
//   histogram_quantile(0.95, rate(dashboard_invalidation_duration_seconds_bucket[5m]))
