package cache

import "time"

// Entry is a value held by a Store together with its lifetime.
type Entry[V any] struct {
	// Value is the cached value.
	Value V `json:"value"`

	// InsertedAt is when the value was last written.
	InsertedAt time.Time `json:"inserted_at"`

	// ExpiresAt is when the entry stops being served. Always after InsertedAt.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the entry is no longer valid at now.
func (e Entry[V]) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e Entry[V]) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
