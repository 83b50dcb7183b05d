package invalidation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Sternrassler/dashboard-cache/pkg/cache"
)

// AllCaches in a rule's cache names targets every registered cache.
const AllCaches = "*"

// EntityPlaceholder in a pattern is replaced by the quoted entity id of the
// event, or by ".+" when the event carries none.
const EntityPlaceholder = "{entityId}"

// Rule maps event kinds to the cache entries they make stale. Every pattern
// is applied to every cache name.
type Rule struct {
	// Name identifies the rule in logs, metrics and RemoveRule
	Name string

	// Kinds the rule reacts to
	Kinds []EventKind

	// CachePatterns are regular expressions matched against keys
	CachePatterns []string

	// CacheNames are the named caches to scan
	CacheNames []string

	// Delay postpones the rule; later events still wait for it
	Delay time.Duration

	// Condition, when set, must return true for the rule to apply
	Condition func(Event) bool
}

// Matches reports whether the rule reacts to kind.
func (r Rule) Matches(kind EventKind) bool {
	return slices.Contains(r.Kinds, kind)
}

func (r Rule) validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidRule)
	case len(r.Kinds) == 0:
		return fmt.Errorf("%w %q: no events", ErrInvalidRule, r.Name)
	case len(r.CachePatterns) == 0:
		return fmt.Errorf("%w %q: no patterns", ErrInvalidRule, r.Name)
	case len(r.CacheNames) == 0:
		return fmt.Errorf("%w %q: no caches", ErrInvalidRule, r.Name)
	case r.Delay < 0:
		return fmt.Errorf("%w %q: negative delay", ErrInvalidRule, r.Name)
	}
	for _, p := range r.CachePatterns {
		if _, err := regexp.Compile(expandPattern(p, "")); err != nil {
			return fmt.Errorf("%w %q: pattern %q: %v", ErrInvalidRule, r.Name, p, err)
		}
	}
	return nil
}

func expandPattern(pattern, entityID string) string {
	if !strings.Contains(pattern, EntityPlaceholder) {
		return pattern
	}
	replacement := ".+"
	if entityID != "" {
		replacement = regexp.QuoteMeta(entityID)
	}
	return strings.ReplaceAll(pattern, EntityPlaceholder, replacement)
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	userCaches := []string{cache.UsersListCache, cache.UserStatsCache, cache.UsersCache}
	entityPatterns := []string{"users:list:.*", "users:stats.*", "^user:" + EntityPlaceholder + "$"}

	return []Rule{
		{
			Name:          "user-create",
			Kinds:         []EventKind{KindUserCreate},
			CachePatterns: []string{"users:list:.*", "users:stats.*"},
			CacheNames:    []string{cache.UsersListCache, cache.UserStatsCache},
		},
		{
			Name:          "user-update",
			Kinds:         []EventKind{KindUserUpdate},
			CachePatterns: entityPatterns,
			CacheNames:    userCaches,
		},
		{
			Name:          "user-delete",
			Kinds:         []EventKind{KindUserDelete},
			CachePatterns: entityPatterns,
			CacheNames:    userCaches,
		},
		{
			Name:          "user-bulk-update",
			Kinds:         []EventKind{KindUserBulkUpdate},
			CachePatterns: []string{".*"},
			CacheNames:    userCaches,
		},
		{
			Name:          "user-api-responses",
			Kinds:         DomainKinds(DomainUser),
			CachePatterns: []string{"^api:/api/users"},
			CacheNames:    []string{cache.APIResponsesCache},
		},
		{
			Name:          "performance-update",
			Kinds:         []EventKind{KindPerformanceUpdate},
			CachePatterns: []string{".*"},
			CacheNames:    []string{cache.PerformanceCache},
		},
		{
			Name:          "api-response-change",
			Kinds:         []EventKind{KindAPIResponseChange},
			CachePatterns: []string{".*"},
			CacheNames:    []string{cache.APIResponsesCache},
		},
		{
			Name:          "global-deployment",
			Kinds:         []EventKind{KindGlobalDeployment},
			CachePatterns: []string{".*"},
			CacheNames:    []string{AllCaches},
		},
	}
}
