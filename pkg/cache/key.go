package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeySeparator joins the segments of every cache key.
const KeySeparator = ":"

// Key is the structured form of a cache key. Every key the dashboard stores
// goes through Key.String so that invalidation patterns and namespace
// lookups keep matching.
type Key struct {
	// Namespace is the leading part of the key (e.g., "users:list")
	Namespace string

	// Params are filter values (e.g., {"role": "Admin"})
	Params map[string]string

	// Page and Limit are appended when positive
	Page  int
	Limit int
}

// String generates a deterministic cache key string.
// Format: namespace:param1=val1:param2=val2:page=N:limit=M
//
// Example:
//
//	users:list:role=Admin:page=1:limit=10
func (k Key) String() string {
	parts := []string{strings.Trim(k.Namespace, KeySeparator)}

	// Params sorted for determinism, empty values dropped
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name, value := range k.Params {
			if value == "" {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	if k.Page > 0 {
		parts = append(parts, fmt.Sprintf("page=%d", k.Page))
	}
	if k.Limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", k.Limit))
	}

	return strings.Join(parts, KeySeparator)
}

// Key namespaces.
const (
	NamespaceUsersList   = "users:list"
	NamespaceUserStats   = "users:stats"
	NamespaceUser        = "user"
	NamespacePerformance = "performance"
	NamespaceAPI         = "api"
)

// UsersListKey returns the key of one page of the filtered user list.
func UsersListKey(filters map[string]string, page, limit int) string {
	return Key{Namespace: NamespaceUsersList, Params: filters, Page: page, Limit: limit}.String()
}

// UserKey returns the key of a single user document.
func UserKey(id string) string {
	return NamespaceUser + KeySeparator + id
}

// UserStatsKey returns the key of the aggregated user statistics.
func UserStatsKey(filters map[string]string) string {
	return Key{Namespace: NamespaceUserStats, Params: filters}.String()
}

// PerformanceKey returns the key of a performance metric snapshot.
func PerformanceKey(metric string) string {
	return NamespacePerformance + KeySeparator + metric
}

// APIKey returns the key of a whole HTTP response.
// Format: api:path:sorted-query
//
// url.Values.Encode sorts by parameter name, so the same request always maps
// to the same key regardless of parameter order.
func APIKey(path string, query url.Values) string {
	return NamespaceAPI + KeySeparator + path + KeySeparator + query.Encode()
}

// RootNamespace returns the first segment of a key, used to index keys for
// prefix invalidation.
func RootNamespace(key string) string {
	root, _, _ := strings.Cut(key, KeySeparator)
	return root
}
