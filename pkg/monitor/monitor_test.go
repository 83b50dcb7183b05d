package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/dashboard-cache/internal/testutil"
	"github.com/Sternrassler/dashboard-cache/pkg/cache"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type staticStats []cache.Stats

func (s staticStats) AllStats() []cache.Stats { return s }

func stats(name string, size, max int, hits, misses, sets uint64) cache.Stats {
	return cache.Stats{
		Name:    name,
		Size:    size,
		Max:     max,
		Hits:    hits,
		Misses:  misses,
		Sets:    sets,
		HitRate: cache.HitRate(hits, misses),
	}
}

func newTestMonitor(source StatsSource) (*Monitor, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(source, WithClock(clock), WithLogger(zerolog.Nop())), clock
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name   string
		source staticStats
		want   Status
	}{
		{
			name:   "no caches",
			source: nil,
			want:   StatusCritical,
		},
		{
			name:   "no requests",
			source: staticStats{stats("a", 0, 10, 0, 0, 0)},
			want:   StatusCritical,
		},
		{
			name:   "critical overall",
			source: staticStats{stats("a", 1, 10, 1, 9, 1)},
			want:   StatusCritical,
		},
		{
			name:   "warning overall",
			source: staticStats{stats("a", 1, 10, 4, 6, 1)},
			want:   StatusWarning,
		},
		{
			name: "one weak cache",
			source: staticStats{
				stats("a", 1, 10, 90, 10, 1),
				stats("b", 1, 10, 2, 8, 1),
			},
			want: StatusWarning,
		},
		{
			name: "idle cache counts as weak",
			source: staticStats{
				stats("a", 1, 10, 9, 1, 1),
				stats("b", 0, 10, 0, 0, 0),
			},
			want: StatusWarning,
		},
		{
			name: "written but never read",
			source: staticStats{
				stats("a", 1, 10, 10, 0, 1),
				stats("performance", 3, 10, 0, 0, 3),
			},
			want: StatusWarning,
		},
		{
			name:   "healthy at boundary",
			source: staticStats{stats("a", 1, 10, 5, 5, 1)},
			want:   StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMonitor(tt.source)
			got := m.HealthStatus()
			if got.Status != tt.want {
				t.Errorf("HealthStatus() = %v (%s), want %v", got.Status, got.Message, tt.want)
			}
			if got.Message == "" {
				t.Error("HealthStatus() message is empty")
			}
		})
	}
}

func TestMonitoringData(t *testing.T) {
	source := staticStats{
		stats("a", 3, 10, 3, 1, 3),
		stats("b", 5, 0, 1, 3, 5),
	}
	m, clock := newTestMonitor(source)
	clock.Advance(90 * time.Second)

	data := m.MonitoringData()

	if data.TotalRequests != 8 {
		t.Errorf("TotalRequests = %d, want 8", data.TotalRequests)
	}
	if data.OverallHitRate != 0.5 {
		t.Errorf("OverallHitRate = %v, want 0.5", data.OverallHitRate)
	}
	if data.TotalMemoryUsage != 8*BytesPerEntry {
		t.Errorf("TotalMemoryUsage = %d, want %d", data.TotalMemoryUsage, 8*BytesPerEntry)
	}
	if data.Uptime != 90*time.Second {
		t.Errorf("Uptime = %v, want 90s", data.Uptime)
	}
	if got := data.Caches[0].Utilization; got != 0.3 {
		t.Errorf("Utilization = %v, want 0.3", got)
	}
	if got := data.Caches[1].Utilization; got != 0 {
		t.Errorf("Utilization of unbounded cache = %v, want 0", got)
	}
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name     string
		source   staticStats
		warmup   bool
		contains []string
		empty    bool
	}{
		{
			name:     "near capacity",
			source:   staticStats{stats("usersList", 95, 100, 90, 10, 95)},
			warmup:   true,
			contains: []string{"usersList is near capacity"},
		},
		{
			name:     "no hits",
			source:   staticStats{stats("userStats", 2, 50, 0, 2, 2)},
			warmup:   true,
			contains: []string{"userStats has 2 writes but no hits"},
		},
		{
			name:     "low hit rate",
			source:   staticStats{stats("users", 5, 500, 2, 18, 5)},
			warmup:   true,
			contains: []string{"users hit rate is 10.0%", "Overall hit rate is 10.0%"},
		},
		{
			name:     "not warmed up",
			source:   staticStats{stats("users", 5, 500, 9, 1, 5)},
			contains: []string{"not been warmed up"},
		},
		{
			name:     "underused",
			source:   staticStats{stats("apiResponses", 3, 200, 20, 5, 3)},
			warmup:   true,
			contains: []string{"apiResponses uses 3 of 200 entries"},
		},
		{
			name:   "nothing to say",
			source: staticStats{stats("users", 100, 500, 9, 1, 5)},
			warmup: true,
			empty:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMonitor(tt.source)
			if tt.warmup {
				m.MarkWarmup()
			}
			recs := m.Recommendations()

			if tt.empty && len(recs) != 0 {
				t.Errorf("Recommendations() = %v, want none", recs)
			}
			joined := strings.Join(recs, "\n")
			for _, want := range tt.contains {
				if !strings.Contains(joined, want) {
					t.Errorf("Recommendations() = %v, want one containing %q", recs, want)
				}
			}
		})
	}
}

func TestUsageStats(t *testing.T) {
	m, _ := newTestMonitor(nil)

	for i := 0; i < 3; i++ {
		m.RecordAccess("usersList", "users:list:page=1")
	}
	m.RecordAccess("users", "user:42")
	m.RecordAccess("users", "user:7")
	m.RecordAccess("users", "user:7")

	want := []KeyUsage{
		{Cache: "usersList", Key: "users:list:page=1", Accesses: 3},
		{Cache: "users", Key: "user:7", Accesses: 2},
	}
	if diff := cmp.Diff(want, m.TopKeys(2)); diff != "" {
		t.Errorf("TopKeys mismatch (-want +got):\n%s", diff)
	}

	m.ClearUsageStats()
	if got := m.TopKeys(10); len(got) != 0 {
		t.Errorf("TopKeys after ClearUsageStats = %v, want none", got)
	}
}

func TestStatsForAPI_WithManager(t *testing.T) {
	manager := cache.NewManager(cache.WithLogger(zerolog.Nop()))
	defer manager.Shutdown()

	cfg := cache.Config{MaxEntries: 100, TTL: time.Minute}
	manager.Set(cache.UsersListCache, "k", 1, cfg)
	manager.Get(cache.UsersListCache, "k", cfg)

	m := New(manager, WithLogger(zerolog.Nop()))
	if got := m.StatsForAPI().Metrics.LastWarmup; got != nil {
		t.Errorf("LastWarmup before warmup = %v, want nil", got)
	}
	m.MarkWarmup()
	m.RecordAccess(cache.UsersListCache, "k")
	payload := m.StatsForAPI()

	if payload.Metrics.LastWarmup == nil {
		t.Error("LastWarmup after warmup = nil")
	}
	wantTop := []KeyUsage{{Cache: cache.UsersListCache, Key: "k", Accesses: 1}}
	if diff := cmp.Diff(wantTop, payload.TopKeys); diff != "" {
		t.Errorf("TopKeys mismatch (-want +got):\n%s", diff)
	}

	if payload.Health != StatusHealthy {
		t.Errorf("Health = %v, want healthy", payload.Health)
	}
	if payload.Metrics.CacheCount != 1 || payload.Metrics.TotalRequests != 1 {
		t.Errorf("Metrics = %+v, want 1 cache and 1 request", payload.Metrics)
	}
	if len(payload.Caches) != 1 || payload.Caches[0].Name != cache.UsersListCache {
		t.Errorf("Caches = %+v", payload.Caches)
	}
}

func TestServeHTTP(t *testing.T) {
	m, _ := newTestMonitor(staticStats{stats("a", 1, 10, 1, 0, 1)})

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, field := range []string{"health", "message", "metrics", "caches", "recommendations", "top_keys"} {
		if _, ok := payload[field]; !ok {
			t.Errorf("payload missing %q", field)
		}
	}
	if metrics, ok := payload["metrics"].(map[string]any); !ok {
		t.Errorf("metrics = %T, want object", payload["metrics"])
	} else if _, ok := metrics["last_warmup"]; ok {
		t.Error("last_warmup present before any warmup")
	}

	w = httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/cache/stats", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", w.Code)
	}
}

func TestLogPerformanceSummary(t *testing.T) {
	buf := &bytes.Buffer{}
	source := staticStats{stats("usersList", 95, 100, 1, 0, 95)}
	m := New(source, WithLogger(zerolog.New(buf)))

	m.LogPerformanceSummary()

	output := buf.String()
	for _, want := range []string{"Cache performance summary", "usersList", "near capacity"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q: %s", want, output)
		}
	}
}
