package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by named cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// CacheMisses tracks cache misses by named cache
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// CacheSets tracks writes by named cache
	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_sets_total",
			Help: "Total number of cache writes",
		},
		[]string{"cache"},
	)

	// CacheEvictions tracks removed entries by named cache and reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_evictions_total",
			Help: "Total number of entries removed from a cache",
		},
		[]string{"cache", "reason"}, // "expired", "capacity", "deleted", "cleared"
	)

	// CacheEntries tracks the number of live entries by named cache
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_cache_entries",
			Help: "Current number of entries in a cache",
		},
		[]string{"cache"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "invalidate_pattern", "store_response"
	)
)
