package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/dashboard-cache/pkg/logging"
)

// Response headers written by the response cache.
const (
	HeaderXCache       = "X-Cache"
	HeaderCacheControl = "Cache-Control"

	CacheHit  = "HIT"
	CacheMiss = "MISS"
)

// ResponseConfig controls how one route's responses are cached.
type ResponseConfig struct {
	// TTL is how long the response stays cached. Zero uses the apiResponses cache TTL.
	TTL time.Duration

	// StaleWhileRevalidate is advertised to shared caches when the
	// apiResponses cache allows stale reads.
	StaleWhileRevalidate time.Duration

	// KeyPattern overrides the generated cache key.
	KeyPattern string

	// Tags label the cached response for InvalidateByTags.
	Tags []string
}

// CachedResponse is a stored HTTP response.
type CachedResponse struct {
	// Body is the JSON response body
	Body json.RawMessage `json:"body"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt is when the response stops being served
	ExpiresAt time.Time `json:"expires_at"`

	// Tags used for tag invalidation
	Tags []string `json:"tags,omitempty"`
}

// IsExpired returns true if the response has expired at now.
func (c *CachedResponse) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// WriteTo writes the cached response to w, marked as a cache hit.
func (c *CachedResponse) WriteTo(w http.ResponseWriter) error {
	header := w.Header()
	for key, values := range c.Headers {
		header[key] = append([]string(nil), values...)
	}
	header.Set(HeaderXCache, CacheHit)

	w.WriteHeader(c.StatusCode)
	if _, err := w.Write(c.Body); err != nil {
		return fmt.Errorf("write cached body: %w", err)
	}
	return nil
}

// ResponseCache caches whole HTTP responses in the apiResponses named cache.
// Entries are keyed by path and sorted query, and indexed by tag.
type ResponseCache struct {
	manager *Manager
	config  Config
	logger  zerolog.Logger

	mu      sync.Mutex
	tags    map[string]map[string]struct{} // tag -> keys
	keyTags map[string][]string            // key -> tags
}

// NewResponseCache creates a response cache on top of manager. cfg is used
// when the apiResponses cache does not exist yet.
func NewResponseCache(manager *Manager, cfg Config) *ResponseCache {
	if manager == nil {
		panic("cache manager cannot be nil")
	}
	rc := &ResponseCache{
		manager: manager,
		config:  cfg,
		logger:  logging.NewLogger(logging.ComponentResponseCache),
		tags:    make(map[string]map[string]struct{}),
		keyTags: make(map[string][]string),
	}
	manager.OnEvict(func(cacheName, key string, _ EvictReason) {
		if cacheName == APIResponsesCache {
			rc.untag(key)
		}
	})
	return rc
}

// SetLogger replaces the response cache logger.
func (rc *ResponseCache) SetLogger(logger zerolog.Logger) {
	rc.logger = logger
}

// GenerateKey returns customPattern when set, otherwise
// "api:" + path + ":" + sorted query string.
func GenerateKey(r *http.Request, customPattern string) string {
	if customPattern != "" {
		return customPattern
	}
	return APIKey(r.URL.Path, r.URL.Query())
}

// ShouldCache reports whether a response may be cached: GET only, 2xx,
// no Set-Cookie, and no private or no-cache directive.
func ShouldCache(r *http.Request, statusCode int, header http.Header) bool {
	if r == nil || r.Method != http.MethodGet {
		return false
	}
	if statusCode < 200 || statusCode > 299 {
		return false
	}
	if header.Get("Set-Cookie") != "" {
		return false
	}
	cc := strings.ToLower(header.Get(HeaderCacheControl))
	if strings.Contains(cc, "private") || strings.Contains(cc, "no-cache") {
		return false
	}
	return true
}

// CacheControl builds a Cache-Control value for shared caches.
func CacheControl(maxAge, staleWhileRevalidate time.Duration) string {
	value := "public, s-maxage=" + strconv.Itoa(int(maxAge.Seconds()))
	if staleWhileRevalidate > 0 {
		value += ", stale-while-revalidate=" + strconv.Itoa(int(staleWhileRevalidate.Seconds()))
	}
	return value
}

// Lookup returns the cached response for r, if any.
func (rc *ResponseCache) Lookup(r *http.Request, cfg ResponseConfig) (*CachedResponse, bool) {
	key := GenerateKey(r, cfg.KeyPattern)
	resp, ok := GetAs[*CachedResponse](rc.manager, APIResponsesCache, key, rc.config)
	if !ok {
		return nil, false
	}
	if resp.IsExpired(rc.manager.clock.Now()) {
		// route TTL shorter than the cache TTL
		rc.manager.Delete(APIResponsesCache, key)
		return nil, false
	}
	return resp, true
}

// Store caches a response if ShouldCache allows it. The body must be JSON;
// anything else is logged and skipped, as caching is best effort.
func (rc *ResponseCache) Store(r *http.Request, statusCode int, header http.Header, body []byte, cfg ResponseConfig) bool {
	if !ShouldCache(r, statusCode, header) {
		return false
	}

	key := GenerateKey(r, cfg.KeyPattern)
	if !json.Valid(body) {
		CacheErrors.WithLabelValues("store_response").Inc()
		rc.logger.Warn().
			Str("key", key).
			Int("bytes", len(body)).
			Msg("Response body is not JSON, skipping cache")
		return false
	}

	now := rc.manager.clock.Now()
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = rc.config.ttl()
	}

	resp := &CachedResponse{
		Body:       json.RawMessage(bytes.Clone(body)),
		StatusCode: statusCode,
		Headers:    header.Clone(),
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Tags:       append([]string(nil), cfg.Tags...),
	}
	resp.Headers.Del(HeaderXCache)

	rc.manager.Set(APIResponsesCache, key, resp, rc.config)
	rc.tag(key, resp.Tags)

	rc.logger.Debug().
		Str("key", key).
		Int("status_code", statusCode).
		Dur("ttl", ttl).
		Strs("tags", resp.Tags).
		Msg("Cached response")
	return true
}

// InvalidateByPattern deletes cached responses whose key matches pattern.
func (rc *ResponseCache) InvalidateByPattern(pattern string) (int, error) {
	return rc.manager.InvalidatePattern(APIResponsesCache, pattern)
}

// InvalidateRegexp deletes cached responses whose key matches re.
func (rc *ResponseCache) InvalidateRegexp(re *regexp.Regexp) int {
	return rc.manager.InvalidateRegexp(APIResponsesCache, re)
}

// InvalidateByTags deletes every cached response carrying any of tags.
func (rc *ResponseCache) InvalidateByTags(tags ...string) int {
	rc.mu.Lock()
	var keys []string
	for _, tag := range tags {
		for key := range rc.tags[tag] {
			keys = append(keys, key)
		}
	}
	rc.mu.Unlock()

	deleted := 0
	for _, key := range keys {
		if rc.manager.Delete(APIResponsesCache, key) {
			deleted++
		}
	}

	rc.logger.Debug().
		Strs("tags", tags).
		Int("deleted", deleted).
		Msg("Tag invalidation")
	return deleted
}

// Clear removes every cached response.
func (rc *ResponseCache) Clear() {
	rc.manager.Clear(APIResponsesCache)
}

func (rc *ResponseCache) tag(key string, tags []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.untagLocked(key)
	if len(tags) == 0 {
		return
	}
	for _, tag := range tags {
		set, ok := rc.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			rc.tags[tag] = set
		}
		set[key] = struct{}{}
	}
	rc.keyTags[key] = tags
}

func (rc *ResponseCache) untag(key string) {
	rc.mu.Lock()
	rc.untagLocked(key)
	rc.mu.Unlock()
}

func (rc *ResponseCache) untagLocked(key string) {
	for _, tag := range rc.keyTags[key] {
		if set, ok := rc.tags[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(rc.tags, tag)
			}
		}
	}
	delete(rc.keyTags, key)
}

// Middleware serves GET requests from the cache and stores cacheable
// handler responses. Responses are marked with X-Cache HIT or MISS.
func (rc *ResponseCache) Middleware(cfg ResponseConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			if cached, ok := rc.Lookup(r, cfg); ok {
				if err := cached.WriteTo(w); err != nil {
					rc.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to write cached response")
				}
				return
			}

			rec := newResponseRecorder()
			next.ServeHTTP(rec, r)

			// Responses that must not be cached never advertise shared caching.
			if ShouldCache(r, rec.status, rec.header) && rec.header.Get(HeaderCacheControl) == "" {
				rec.header.Set(HeaderCacheControl, rc.cacheControl(cfg))
			}
			rc.Store(r, rec.status, rec.header, rec.body.Bytes(), cfg)

			header := w.Header()
			for key, values := range rec.header {
				header[key] = values
			}
			header.Set(HeaderXCache, CacheMiss)
			w.WriteHeader(rec.status)
			if _, err := w.Write(rec.body.Bytes()); err != nil {
				rc.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to write response")
			}
		})
	}
}

func (rc *ResponseCache) cacheControl(cfg ResponseConfig) string {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = rc.config.ttl()
	}
	var swr time.Duration
	if c, ok := rc.manager.lookup(APIResponsesCache); ok && c.config.AllowStale {
		swr = cfg.StaleWhileRevalidate
	} else if !ok && rc.config.AllowStale {
		swr = cfg.StaleWhileRevalidate
	}
	return CacheControl(ttl, swr)
}

// responseRecorder buffers a handler response so it can be cached before
// being sent.
type responseRecorder struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header), status: http.StatusOK}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(p)
}
