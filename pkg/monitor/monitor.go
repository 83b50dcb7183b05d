// Package monitor turns cache manager statistics into health reports,
// recommendations and the payload of the cache monitoring endpoint.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/cache"
	"github.com/Sternrassler/dashboard-cache/pkg/logging"
)

// Health thresholds.
const (
	// CriticalHitRate marks the overall hit rate below which caching is considered broken.
	CriticalHitRate = 0.2

	// WarningHitRate marks the overall hit rate below which caching is degraded.
	WarningHitRate = 0.5

	// CacheWarningHitRate marks a single cache as underperforming.
	CacheWarningHitRate = 0.3

	// NearCapacityRatio triggers the capacity recommendation.
	NearCapacityRatio = 0.9

	// UnderusedRatio triggers the oversized cache recommendation for caches
	// of at least minUnderusedMax entries.
	UnderusedRatio = 0.1

	// BytesPerEntry is the rough memory estimate per cached entry.
	BytesPerEntry = 1024

	// TopKeysInPayload is the number of hot keys reported by StatsForAPI.
	TopKeysInPayload = 10

	minRequestsForAdvice = 10
	minUnderusedMax      = 100
)

// Status is the overall cache health.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Health is the result of a health evaluation.
type Health struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// StatsSource provides cache statistics. *cache.Manager implements it.
type StatsSource interface {
	AllStats() []cache.Stats
}

// CacheReport is the monitoring view of one cache.
type CacheReport struct {
	cache.Stats
	MemoryUsage int64   `json:"memory_usage"`
	Utilization float64 `json:"utilization"`
}

// Data is a full monitoring snapshot.
type Data struct {
	Caches           []CacheReport `json:"caches"`
	TotalMemoryUsage int64         `json:"total_memory_usage"`
	OverallHitRate   float64       `json:"overall_hit_rate"`
	TotalRequests    uint64        `json:"total_requests"`
	Uptime           time.Duration `json:"uptime"`
	LastWarmup       time.Time     `json:"last_warmup"`
	Recommendations  []string      `json:"recommendations"`
}

// Metrics is the aggregate section of the API payload.
type Metrics struct {
	TotalRequests    uint64    `json:"total_requests"`
	OverallHitRate   float64   `json:"overall_hit_rate"`
	TotalMemoryUsage int64     `json:"total_memory_usage"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	CacheCount       int       `json:"cache_count"`
	LastWarmup       *time.Time `json:"last_warmup,omitempty"`
}

// APIStats is the JSON payload of the monitoring endpoint.
type APIStats struct {
	Health          Status        `json:"health"`
	Message         string        `json:"message"`
	Metrics         Metrics       `json:"metrics"`
	Caches          []CacheReport `json:"caches"`
	Recommendations []string      `json:"recommendations"`
	TopKeys         []KeyUsage    `json:"top_keys"`
}

// KeyUsage counts accesses to one key.
type KeyUsage struct {
	Cache    string `json:"cache"`
	Key      string `json:"key"`
	Accesses uint64 `json:"accesses"`
}

type usageKey struct {
	cache string
	key   string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock used for uptime.
func WithClock(clock cache.Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithLogger sets the monitor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// Monitor aggregates cache statistics. It never changes cache state.
type Monitor struct {
	source  StatsSource
	clock   cache.Clock
	logger  zerolog.Logger
	started time.Time

	mu         sync.Mutex
	lastWarmup time.Time
	usage      map[usageKey]uint64
}

// New creates a monitor reading from source.
func New(source StatsSource, opts ...Option) *Monitor {
	m := &Monitor{
		source: source,
		clock:  cache.SystemClock(),
		logger: logging.NewLogger(logging.ComponentMonitor),
		usage:  make(map[usageKey]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.clock.Now()
	return m
}

// MarkWarmup records that the caches were just warmed up.
func (m *Monitor) MarkWarmup() {
	m.mu.Lock()
	m.lastWarmup = m.clock.Now()
	m.mu.Unlock()
}

// RecordAccess counts one access to key in the named cache.
func (m *Monitor) RecordAccess(cacheName, key string) {
	m.mu.Lock()
	m.usage[usageKey{cacheName, key}]++
	m.mu.Unlock()
}

// TopKeys returns the n most accessed keys, most accessed first.
func (m *Monitor) TopKeys(n int) []KeyUsage {
	m.mu.Lock()
	top := make([]KeyUsage, 0, len(m.usage))
	for k, count := range m.usage {
		top = append(top, KeyUsage{Cache: k.cache, Key: k.key, Accesses: count})
	}
	m.mu.Unlock()

	sort.Slice(top, func(i, j int) bool {
		if top[i].Accesses != top[j].Accesses {
			return top[i].Accesses > top[j].Accesses
		}
		if top[i].Cache != top[j].Cache {
			return top[i].Cache < top[j].Cache
		}
		return top[i].Key < top[j].Key
	})
	if n >= 0 && n < len(top) {
		top = top[:n]
	}
	return top
}

// ClearUsageStats drops the access counts.
func (m *Monitor) ClearUsageStats() {
	m.mu.Lock()
	m.usage = make(map[usageKey]uint64)
	m.mu.Unlock()
}

// MonitoringData collects a snapshot of every registered cache.
func (m *Monitor) MonitoringData() Data {
	stats := m.source.AllStats()

	data := Data{
		Caches: make([]CacheReport, 0, len(stats)),
		Uptime: m.clock.Now().Sub(m.started),
	}

	var hits uint64
	for _, s := range stats {
		report := CacheReport{
			Stats:       s,
			MemoryUsage: int64(s.Size) * BytesPerEntry,
		}
		if s.Max > 0 {
			report.Utilization = float64(s.Size) / float64(s.Max)
		}
		data.Caches = append(data.Caches, report)
		data.TotalMemoryUsage += report.MemoryUsage
		data.TotalRequests += s.Requests()
		hits += s.Hits
	}
	if data.TotalRequests > 0 {
		data.OverallHitRate = float64(hits) / float64(data.TotalRequests)
	}

	m.mu.Lock()
	data.LastWarmup = m.lastWarmup
	m.mu.Unlock()

	data.Recommendations = recommendations(data)
	return data
}

// HealthStatus evaluates the current cache health.
func (m *Monitor) HealthStatus() Health {
	return evaluate(m.MonitoringData())
}

// Recommendations returns advisory strings for the current state.
func (m *Monitor) Recommendations() []string {
	return m.MonitoringData().Recommendations
}

// StatsForAPI builds the monitoring endpoint payload.
func (m *Monitor) StatsForAPI() APIStats {
	data := m.MonitoringData()
	health := evaluate(data)

	var lastWarmup *time.Time
	if !data.LastWarmup.IsZero() {
		lastWarmup = &data.LastWarmup
	}

	return APIStats{
		Health:  health.Status,
		Message: health.Message,
		Metrics: Metrics{
			TotalRequests:    data.TotalRequests,
			OverallHitRate:   data.OverallHitRate,
			TotalMemoryUsage: data.TotalMemoryUsage,
			UptimeSeconds:    data.Uptime.Seconds(),
			CacheCount:       len(data.Caches),
			LastWarmup:       lastWarmup,
		},
		Caches:          data.Caches,
		Recommendations: data.Recommendations,
		TopKeys:         m.TopKeys(TopKeysInPayload),
	}
}

// LogPerformanceSummary writes a report of every cache to the log.
func (m *Monitor) LogPerformanceSummary() {
	data := m.MonitoringData()
	health := evaluate(data)

	m.logger.Info().
		Str("health", string(health.Status)).
		Uint64("total_requests", data.TotalRequests).
		Float64("overall_hit_rate", data.OverallHitRate).
		Int64("memory_bytes", data.TotalMemoryUsage).
		Dur("uptime", data.Uptime).
		Msg("Cache performance summary")

	for _, c := range data.Caches {
		m.logger.Info().
			Str("cache", c.Name).
			Int("size", c.Size).
			Int("max", c.Max).
			Uint64("hits", c.Hits).
			Uint64("misses", c.Misses).
			Uint64("sets", c.Sets).
			Float64("hit_rate", c.HitRate).
			Msg("Cache stats")
	}

	for _, r := range data.Recommendations {
		m.logger.Warn().Str("recommendation", r).Msg("Cache recommendation")
	}
}

// ServeHTTP serves the monitoring payload as JSON.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(cache.HeaderCacheControl, "no-cache")
	if err := json.NewEncoder(w).Encode(m.StatsForAPI()); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to encode monitoring payload")
	}
}

// evaluate applies the health thresholds. The overall hit rate is 0 before
// the first request, so an unused cache layer reports critical.
func evaluate(data Data) Health {
	pct := data.OverallHitRate * 100
	switch {
	case data.TotalRequests == 0:
		return Health{Status: StatusCritical, Message: "No cache requests served yet"}
	case data.OverallHitRate < CriticalHitRate:
		return Health{
			Status:  StatusCritical,
			Message: fmt.Sprintf("Overall hit rate %.1f%% is critically low", pct),
		}
	case data.OverallHitRate < WarningHitRate:
		return Health{
			Status:  StatusWarning,
			Message: fmt.Sprintf("Overall hit rate %.1f%% is below target", pct),
		}
	}

	for _, c := range data.Caches {
		if c.HitRate < CacheWarningHitRate {
			return Health{
				Status:  StatusWarning,
				Message: fmt.Sprintf("Cache %s hit rate %.1f%% is low", c.Name, c.HitRate*100),
			}
		}
	}

	return Health{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("Caches healthy, overall hit rate %.1f%%", pct),
	}
}

func recommendations(data Data) []string {
	recs := []string{}

	for _, c := range data.Caches {
		if c.Max > 0 && c.Utilization > NearCapacityRatio {
			recs = append(recs, fmt.Sprintf(
				"Cache %s is near capacity (%d/%d entries); consider raising its max entries", c.Name, c.Size, c.Max))
		}
		if c.Max >= minUnderusedMax && c.Requests() >= minRequestsForAdvice && c.Utilization < UnderusedRatio {
			recs = append(recs, fmt.Sprintf(
				"Cache %s uses %d of %d entries; consider lowering its max entries", c.Name, c.Size, c.Max))
		}
		if c.Sets > 0 && c.Hits == 0 {
			recs = append(recs, fmt.Sprintf(
				"Cache %s has %d writes but no hits; check its key generation and TTL", c.Name, c.Sets))
		} else if c.Requests() >= minRequestsForAdvice && c.HitRate < CacheWarningHitRate {
			recs = append(recs, fmt.Sprintf(
				"Cache %s hit rate is %.1f%%; consider a longer TTL", c.Name, c.HitRate*100))
		}
	}

	if data.TotalRequests >= minRequestsForAdvice && data.OverallHitRate < WarningHitRate {
		recs = append(recs, fmt.Sprintf(
			"Overall hit rate is %.1f%%; review invalidation rules for over-eager clearing", data.OverallHitRate*100))
	}
	if data.TotalRequests > 0 && data.LastWarmup.IsZero() {
		recs = append(recs, "Caches have not been warmed up since start; consider warming the busiest lists")
	}

	return recs
}
