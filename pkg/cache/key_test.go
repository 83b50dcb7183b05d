package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "namespace only",
			key:  Key{Namespace: "users:stats"},
			want: "users:stats",
		},
		{
			name: "list with filter and paging",
			key: Key{
				Namespace: NamespaceUsersList,
				Params:    map[string]string{"role": "Admin"},
				Page:      1,
				Limit:     10,
			},
			want: "users:list:role=Admin:page=1:limit=10",
		},
		{
			name: "params sorted",
			key: Key{
				Namespace: NamespaceUsersList,
				Params: map[string]string{
					"status":   "active",
					"category": "Partner",
					"role":     "Agent",
				},
			},
			want: "users:list:category=Partner:role=Agent:status=active",
		},
		{
			name: "empty values dropped",
			key: Key{
				Namespace: NamespaceUsersList,
				Params:    map[string]string{"role": "", "search": "bob"},
				Page:      2,
			},
			want: "users:list:search=bob:page=2",
		},
		{
			name: "surrounding separators trimmed",
			key:  Key{Namespace: ":performance:"},
			want: "performance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestKey_Determinism ensures filter insertion order never changes the key
func TestKey_Determinism(t *testing.T) {
	a := map[string]string{}
	a["role"] = "Admin"
	a["status"] = "active"
	a["category"] = "Staff"

	b := map[string]string{}
	b["category"] = "Staff"
	b["status"] = "active"
	b["role"] = "Admin"

	first := UsersListKey(a, 3, 25)
	for i := 0; i < 10; i++ {
		if got := UsersListKey(b, 3, 25); got != first {
			t.Fatalf("UsersListKey = %v, want %v (not deterministic)", got, first)
		}
	}
}

func TestKeyHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"users list", UsersListKey(map[string]string{"role": "Admin"}, 1, 10), "users:list:role=Admin:page=1:limit=10"},
		{"user", UserKey("42"), "user:42"},
		{"user stats", UserStatsKey(map[string]string{"role": "Staff"}), "users:stats:role=Staff"},
		{"performance", PerformanceKey("overview"), "performance:overview"},
		{"api", APIKey("/api/users", url.Values{"page": {"1"}, "limit": {"10"}}), "api:/api/users:limit=10&page=1"},
		{"api without query", APIKey("/api/health", nil), "api:/api/health:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestRootNamespace(t *testing.T) {
	tests := map[string]string{
		"users:list:role=Admin": "users",
		"user:42":               "user",
		"performance":           "performance",
		"":                      "",
	}
	for key, want := range tests {
		if got := RootNamespace(key); got != want {
			t.Errorf("RootNamespace(%q) = %q, want %q", key, got, want)
		}
	}
}
