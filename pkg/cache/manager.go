package cache

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/logging"
)

var (
	// ErrInvalidPattern indicates an invalidation pattern is not a valid regular expression
	ErrInvalidPattern = errors.New("invalid invalidation pattern")
)

// Stats is a snapshot of one named cache.
type Stats struct {
	Name      string  `json:"name"`
	Size      int     `json:"size"`
	Max       int     `json:"max"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Sets      uint64  `json:"sets"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Requests returns hits plus misses.
func (s Stats) Requests() uint64 {
	return s.Hits + s.Misses
}

// HitRate returns hits/(hits+misses), or 0 when nothing was requested yet.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// NamedCache is one registered cache partition with its own configuration
// and lifetime counters.
type NamedCache struct {
	name   string
	config Config
	store  *Store[string, any]

	hits      atomic.Uint64
	misses    atomic.Uint64
	sets      atomic.Uint64
	evictions atomic.Uint64

	configWarned atomic.Bool

	// keys by root namespace, for prefix invalidation
	idxMu sync.Mutex
	index map[string]map[string]struct{}
}

// Name returns the registry name of the cache.
func (c *NamedCache) Name() string { return c.name }

// Config returns the configuration captured at creation.
func (c *NamedCache) Config() Config { return c.config }

// Len returns the number of live entries.
func (c *NamedCache) Len() int { return c.store.Len() }

// Keys returns the live keys in insertion order.
func (c *NamedCache) Keys() []string { return c.store.Keys() }

// Stats returns a snapshot of the cache counters.
func (c *NamedCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	return Stats{
		Name:      c.name,
		Size:      c.store.Len(),
		Max:       c.config.MaxEntries,
		Hits:      hits,
		Misses:    misses,
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		HitRate:   HitRate(hits, misses),
	}
}

func (c *NamedCache) indexAdd(key string) {
	root := RootNamespace(key)
	c.idxMu.Lock()
	set, ok := c.index[root]
	if !ok {
		set = make(map[string]struct{})
		c.index[root] = set
	}
	set[key] = struct{}{}
	c.idxMu.Unlock()
}

func (c *NamedCache) indexRemove(key string) {
	root := RootNamespace(key)
	c.idxMu.Lock()
	if set, ok := c.index[root]; ok {
		delete(set, key)
		if len(set) == 0 {
			delete(c.index, root)
		}
	}
	c.idxMu.Unlock()
}

// indexLookup returns the indexed keys that may start with prefix. A prefix
// without a separator can end inside the root segment, so every root it
// prefixes is included.
func (c *NamedCache) indexLookup(prefix string) []string {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	if strings.Contains(prefix, KeySeparator) {
		set := c.index[RootNamespace(prefix)]
		keys := make([]string, 0, len(set))
		for key := range set {
			keys = append(keys, key)
		}
		return keys
	}

	var keys []string
	for root, set := range c.index {
		if !strings.HasPrefix(root, prefix) {
			continue
		}
		for key := range set {
			keys = append(keys, key)
		}
	}
	return keys
}

// EvictListener observes every entry removed from any cache of a Manager.
type EvictListener func(cacheName, key string, reason EvictReason)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used by every store the manager creates.
func WithClock(clock Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSweepInterval starts a background sweeper on every created cache.
func WithSweepInterval(interval time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = interval }
}

// Manager is the registry of named caches. Caches are created lazily on
// first use and live until Shutdown.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]*NamedCache

	clock         Clock
	logger        zerolog.Logger
	sweepInterval time.Duration

	listenersMu sync.RWMutex
	listeners   []EvictListener
}

// NewManager creates an empty cache registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		caches: make(map[string]*NamedCache),
		clock:  SystemClock(),
		logger: logging.NewLogger(logging.ComponentCacheManager),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnEvict registers a listener for removed entries.
func (m *Manager) OnEvict(listener EvictListener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, listener)
	m.listenersMu.Unlock()
}

// GetCache returns the cache registered under name, creating it with cfg if
// absent. The first caller's config wins; a later, different config is
// ignored and reported once as a warning.
func (m *Manager) GetCache(name string, cfg Config) *NamedCache {
	m.mu.RLock()
	c, ok := m.caches[name]
	m.mu.RUnlock()
	if ok {
		m.checkConfig(c, cfg)
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[name]; ok {
		m.checkConfig(c, cfg)
		return c
	}

	c = &NamedCache{
		name:   name,
		config: cfg,
		index:  make(map[string]map[string]struct{}),
	}
	c.store = NewStore[string, any](cfg, m.clock, func(key string, _ any, reason EvictReason) {
		m.evicted(c, key, reason)
	})
	if m.sweepInterval > 0 {
		c.store.StartSweeper(m.sweepInterval)
	}
	m.caches[name] = c

	m.logger.Debug().
		Str("cache", name).
		Int("max_entries", cfg.MaxEntries).
		Dur("ttl", cfg.ttl()).
		Bool("refresh_ttl_on_access", cfg.RefreshTTLOnAccess).
		Msg("Cache created")

	return c
}

func (m *Manager) checkConfig(c *NamedCache, cfg Config) {
	if cfg == (Config{}) || cfg == c.config {
		return
	}
	if c.configWarned.CompareAndSwap(false, true) {
		m.logger.Warn().
			Str("cache", c.name).
			Interface("existing", c.config).
			Interface("requested", cfg).
			Msg("Cache already exists with a different config, keeping the original")
	}
}

// lookup returns a registered cache without creating it.
func (m *Manager) lookup(name string) (*NamedCache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

func (m *Manager) evicted(c *NamedCache, key string, reason EvictReason) {
	c.indexRemove(key)
	if reason == EvictExpired || reason == EvictCapacity {
		c.evictions.Add(1)
	}
	CacheEvictions.WithLabelValues(c.name, reason.String()).Inc()

	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l(c.name, key, reason)
	}
}

// Get returns the value stored under key in the named cache, creating the
// cache with cfg if needed. Every call counts as a hit or a miss.
func (m *Manager) Get(cacheName, key string, cfg Config) (any, bool) {
	c := m.GetCache(cacheName, cfg)

	value, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		CacheMisses.WithLabelValues(cacheName).Inc()
		m.logger.Debug().Str("cache", cacheName).Str("key", key).Msg("Cache miss")
		return nil, false
	}

	c.hits.Add(1)
	CacheHits.WithLabelValues(cacheName).Inc()
	m.logger.Debug().Str("cache", cacheName).Str("key", key).Msg("Cache hit")
	return value, true
}

// GetAs is Get with a typed result. A stored value of another type is
// reported as absent (it still counts as a hit).
func GetAs[T any](m *Manager, cacheName, key string, cfg Config) (T, bool) {
	var zero T
	value, ok := m.Get(cacheName, key, cfg)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores value under key in the named cache, creating the cache with
// cfg if needed.
func (m *Manager) Set(cacheName, key string, value any, cfg Config) {
	c := m.GetCache(cacheName, cfg)

	c.store.Set(key, value)
	c.indexAdd(key)
	c.sets.Add(1)

	CacheSets.WithLabelValues(cacheName).Inc()
	CacheEntries.WithLabelValues(cacheName).Set(float64(c.store.Len()))

	m.logger.Debug().
		Str("cache", cacheName).
		Str("key", key).
		Dur("ttl", c.config.ttl()).
		Msg("Cached value")
}

// Delete removes key from the named cache and reports whether it existed.
func (m *Manager) Delete(cacheName, key string) bool {
	c, ok := m.lookup(cacheName)
	if !ok {
		return false
	}
	deleted := c.store.Delete(key)
	CacheEntries.WithLabelValues(cacheName).Set(float64(c.store.Len()))
	return deleted
}

// Clear removes every entry of the named cache. Counters are kept.
func (m *Manager) Clear(cacheName string) {
	c, ok := m.lookup(cacheName)
	if !ok {
		return
	}
	c.store.Clear()
	CacheEntries.WithLabelValues(cacheName).Set(0)
	m.logger.Info().Str("cache", cacheName).Msg("Cache cleared")
}

// ClearAll clears every registered cache.
func (m *Manager) ClearAll() {
	for _, name := range m.CacheNames() {
		m.Clear(name)
	}
}

// InvalidatePattern deletes every live key of the named cache that matches
// the regular expression and returns how many were deleted. The pattern is
// matched against the literal key string, unanchored.
func (m *Manager) InvalidatePattern(cacheName, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		CacheErrors.WithLabelValues("invalidate_pattern").Inc()
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return m.InvalidateRegexp(cacheName, re), nil
}

// InvalidateRegexp is InvalidatePattern with a compiled expression.
func (m *Manager) InvalidateRegexp(cacheName string, re *regexp.Regexp) int {
	c, ok := m.lookup(cacheName)
	if !ok {
		return 0
	}

	deleted := 0
	for _, key := range c.store.Keys() {
		if re.MatchString(key) && c.store.Delete(key) {
			deleted++
		}
	}
	CacheEntries.WithLabelValues(cacheName).Set(float64(c.store.Len()))

	m.logger.Debug().
		Str("cache", cacheName).
		Str("pattern", re.String()).
		Int("deleted", deleted).
		Msg("Pattern invalidation")

	return deleted
}

// InvalidatePrefix deletes every key of the named cache starting with
// prefix. Candidates come from the root namespace index. An empty prefix
// deletes every key.
func (m *Manager) InvalidatePrefix(cacheName, prefix string) int {
	c, ok := m.lookup(cacheName)
	if !ok {
		return 0
	}

	deleted := 0
	for _, key := range c.indexLookup(prefix) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if c.store.Delete(key) {
			deleted++
		} else {
			c.indexRemove(key)
		}
	}
	CacheEntries.WithLabelValues(cacheName).Set(float64(c.store.Len()))

	m.logger.Debug().
		Str("cache", cacheName).
		Str("prefix", prefix).
		Int("deleted", deleted).
		Msg("Prefix invalidation")

	return deleted
}

// Stats returns the statistics of one cache.
func (m *Manager) Stats(cacheName string) (Stats, bool) {
	c, ok := m.lookup(cacheName)
	if !ok {
		return Stats{}, false
	}
	return c.Stats(), true
}

// AllStats returns the statistics of every registered cache, sorted by name.
func (m *Manager) AllStats() []Stats {
	names := m.CacheNames()
	stats := make([]Stats, 0, len(names))
	for _, name := range names {
		if s, ok := m.Stats(name); ok {
			stats = append(stats, s)
		}
	}
	return stats
}

// CacheNames returns the registered cache names, sorted.
func (m *Manager) CacheNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	return names
}

// ResetStats zeroes the counters of the named cache. Entries are kept.
func (m *Manager) ResetStats(cacheName string) {
	c, ok := m.lookup(cacheName)
	if !ok {
		return
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.evictions.Store(0)
}

// Shutdown stops background sweepers and drops every cache.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	caches := m.caches
	m.caches = make(map[string]*NamedCache)
	m.mu.Unlock()

	for name, c := range caches {
		c.store.Close()
		c.store.Clear()
		CacheEntries.WithLabelValues(name).Set(0)
	}
	m.logger.Info().Int("caches", len(caches)).Msg("Cache manager shut down")
}
