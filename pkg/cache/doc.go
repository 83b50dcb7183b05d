// Package cache provides the in-process caching layer of the admin dashboard.
//
// The package implements the following features:
//
// - Bounded TTL stores with insertion-order eviction and proactive expiry
// - A registry of named caches with hit/miss/set counters
// - Deterministic cache key generation
// - Regex and namespace-prefix invalidation
// - Whole HTTP response caching with tag invalidation
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	// Create cache manager
//	manager := cache.NewManager(cache.WithLogger(logger))
//	defer manager.Shutdown()
//
//	cfg := cache.DefaultConfigs()[cache.UsersListCache]
//	key := cache.UsersListKey(map[string]string{"role": "Admin"}, 1, 10)
//
//	// Get from cache
//	users, ok := cache.GetAs[[]User](manager, cache.UsersListCache, key, cfg)
//	if !ok {
//		// Cache miss - load from the database
//		users = loadUsers()
//		manager.Set(cache.UsersListCache, key, users, cfg)
//	}
//
// # Invalidation
//
//	// Every paginated user list
//	n, err := manager.InvalidatePattern(cache.UsersListCache, "users:list:.*")
//
//	// Same result through the namespace index, without a regex scan
//	n = manager.InvalidatePrefix(cache.UsersListCache, cache.NamespaceUsersList)
//
// # HTTP Response Caching
//
//	responses := cache.NewResponseCache(manager, cache.DefaultConfigs()[cache.APIResponsesCache])
//	mux.Handle("/api/users", responses.Middleware(cache.ResponseConfig{
//		TTL:  60 * time.Second,
//		Tags: []string{"users"},
//	})(usersHandler))
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - dashboard_cache_hits_total{cache} - Cache hits
//   - dashboard_cache_misses_total{cache} - Cache misses
//   - dashboard_cache_sets_total{cache} - Cache writes
//   - dashboard_cache_evictions_total{cache,reason} - Removed entries
//   - dashboard_cache_entries{cache} - Live entries
//   - dashboard_cache_errors_total{operation} - Cache operation errors
//
// # Eviction Order
//
// Despite the usual LRU naming in dashboards, eviction is strictly by
// insertion order: reading an entry never protects it from eviction, it only
// restarts its TTL when the cache is configured with RefreshTTLOnAccess.
package cache
