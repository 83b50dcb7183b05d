package cache

import "time"

const (
	// DefaultTTL is the fallback TTL when a config carries none.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries is the capacity used by DefaultConfig.
	DefaultMaxEntries = 100
)

// Named caches used by the dashboard.
const (
	UsersListCache    = "usersList"
	UserStatsCache    = "userStats"
	UsersCache        = "users"
	PerformanceCache  = "performance"
	APIResponsesCache = "apiResponses"
)

// Config describes the behaviour of one named cache. It is captured when the
// cache is created and never changes afterwards.
type Config struct {
	// MaxEntries caps the number of live entries. Zero or negative means unbounded.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// TTL is the lifetime of an entry after insertion (or last access when
	// RefreshTTLOnAccess is set).
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// RefreshTTLOnAccess restarts the TTL on every successful Get.
	RefreshTTLOnAccess bool `json:"refresh_ttl_on_access" yaml:"refresh_ttl_on_access"`

	// AllowStale makes the response cache advertise stale-while-revalidate.
	// Expired entries are never returned from memory.
	AllowStale bool `json:"allow_stale" yaml:"allow_stale"`
}

// DefaultConfig returns a general purpose configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries: DefaultMaxEntries,
		TTL:        DefaultTTL,
	}
}

// DefaultConfigs returns the configuration of every named cache the admin
// dashboard uses.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		UsersListCache: {
			MaxEntries: 100,
			TTL:        60 * time.Second,
		},
		UserStatsCache: {
			MaxEntries: 50,
			TTL:        5 * time.Minute,
		},
		UsersCache: {
			MaxEntries:         500,
			TTL:                2 * time.Minute,
			RefreshTTLOnAccess: true,
		},
		PerformanceCache: {
			MaxEntries: 20,
			TTL:        30 * time.Second,
		},
		APIResponsesCache: {
			MaxEntries: 200,
			TTL:        60 * time.Second,
			AllowStale: true,
		},
	}
}

// ttl returns the effective TTL, never zero.
func (c Config) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}
