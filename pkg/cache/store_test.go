package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/dashboard-cache/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, cfg Config) (*Store[string, int], *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(epoch)
	return NewStore[string, int](cfg, clock, nil), clock
}

func TestStore_CapacityEvictsOldestInserted(t *testing.T) {
	const n = 5
	store, _ := newTestStore(t, Config{MaxEntries: n, TTL: time.Minute})

	for i := 0; i <= n; i++ {
		store.Set(fmt.Sprintf("k%d", i), i)
	}

	if got := store.Len(); got != n {
		t.Fatalf("Len() = %d, want %d", got, n)
	}
	if _, ok := store.Get("k0"); ok {
		t.Error("first inserted key should have been evicted")
	}
	for i := 1; i <= n; i++ {
		if _, ok := store.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should still be present", i)
		}
	}
}

func TestStore_EvictionIgnoresAccessRecency(t *testing.T) {
	store, _ := newTestStore(t, Config{MaxEntries: 2, TTL: time.Minute, RefreshTTLOnAccess: true})

	store.Set("a", 1)
	store.Set("b", 2)
	// Reading "a" must not protect it
	store.Get("a")
	store.Set("c", 3)

	if _, ok := store.Get("a"); ok {
		t.Error("a should be evicted even though it was read last")
	}
	if diff := cmp.Diff([]string{"b", "c"}, store.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_OverwriteKeepsPosition(t *testing.T) {
	store, _ := newTestStore(t, Config{MaxEntries: 2, TTL: time.Minute})

	store.Set("a", 1)
	store.Set("b", 2)
	store.Set("a", 10)
	store.Set("c", 3)

	if _, ok := store.Get("a"); ok {
		t.Error("overwritten key keeps its original insertion position and should be evicted")
	}
	if v, ok := store.Get("b"); !ok || v != 2 {
		t.Errorf("Get(b) = %v, %v; want 2, true", v, ok)
	}
}

func TestStore_TTL(t *testing.T) {
	const ttl = time.Second
	store, clock := newTestStore(t, Config{MaxEntries: 10, TTL: ttl})

	store.Set("k", 1)

	clock.Advance(ttl - time.Millisecond)
	if _, ok := store.Get("k"); !ok {
		t.Fatal("key should be present before TTL")
	}

	clock.Advance(time.Millisecond)
	if _, ok := store.Get("k"); ok {
		t.Fatal("key should be absent at TTL")
	}
}

func TestStore_TTLRefreshOnAccess(t *testing.T) {
	const ttl = time.Second

	tests := []struct {
		name    string
		refresh bool
		want    bool
	}{
		{name: "refresh enabled", refresh: true, want: true},
		{name: "refresh disabled", refresh: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newTestStore(t, Config{MaxEntries: 10, TTL: ttl, RefreshTTLOnAccess: tt.refresh})
			store.Set("k", 1)

			clock.Set(epoch.Add(ttl - time.Millisecond))
			if _, ok := store.Get("k"); !ok {
				t.Fatal("key should be present at T-1ms")
			}

			clock.Set(epoch.Add(2*ttl - 2*time.Millisecond))
			if _, ok := store.Get("k"); ok != tt.want {
				t.Errorf("Get at 2T-2ms present = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestStore_PeekDoesNotRefresh(t *testing.T) {
	const ttl = time.Second
	store, clock := newTestStore(t, Config{MaxEntries: 10, TTL: ttl, RefreshTTLOnAccess: true})
	store.Set("k", 1)

	clock.Advance(ttl / 2)
	entry, ok := store.Peek("k")
	if !ok {
		t.Fatal("Peek should find the key")
	}
	if !entry.ExpiresAt.Equal(epoch.Add(ttl)) {
		t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, epoch.Add(ttl))
	}
	if !entry.ExpiresAt.After(entry.InsertedAt) {
		t.Error("ExpiresAt must be after InsertedAt")
	}

	clock.Advance(ttl / 2)
	if _, ok := store.Peek("k"); ok {
		t.Error("Peek must not extend the TTL")
	}
}

func TestStore_ProactiveExpiry(t *testing.T) {
	clock := testutil.NewFakeClock(epoch)
	var expired []string
	store := NewStore[string, int](Config{MaxEntries: 10, TTL: time.Second}, clock,
		func(key string, _ int, reason EvictReason) {
			if reason == EvictExpired {
				expired = append(expired, key)
			}
		})

	store.Set("a", 1)
	clock.Advance(500 * time.Millisecond)
	store.Set("b", 2)
	clock.Advance(600 * time.Millisecond)

	// "a" is never read again but must not be counted
	if got := store.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"a"}, expired); diff != "" {
		t.Errorf("expired keys mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_NonPositiveTTLUsesDefault(t *testing.T) {
	store, clock := newTestStore(t, Config{MaxEntries: 10})
	store.Set("k", 1)

	clock.Advance(DefaultTTL - time.Second)
	if _, ok := store.Get("k"); !ok {
		t.Error("key should live for DefaultTTL")
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	store, _ := newTestStore(t, Config{MaxEntries: 10, TTL: time.Minute})
	store.Set("a", 1)
	store.Set("b", 2)

	if !store.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if store.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}

	store.Clear()
	store.Clear()
	if got := store.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
	if got := store.Sweep(); got != 0 {
		t.Errorf("Sweep() after Clear = %d, want 0", got)
	}
}

func TestStore_Unbounded(t *testing.T) {
	store, _ := newTestStore(t, Config{TTL: time.Minute})
	for i := 0; i < 1000; i++ {
		store.Set(fmt.Sprintf("k%d", i), i)
	}
	if got := store.Len(); got != 1000 {
		t.Errorf("Len() = %d, want 1000", got)
	}
}

func TestStore_Sweeper(t *testing.T) {
	var mu sync.Mutex
	removed := make(chan string, 1)
	store := NewStore[string, int](Config{MaxEntries: 10, TTL: 20 * time.Millisecond}, nil,
		func(key string, _ int, reason EvictReason) {
			mu.Lock()
			defer mu.Unlock()
			if reason == EvictExpired {
				select {
				case removed <- key:
				default:
				}
			}
		})
	store.StartSweeper(5 * time.Millisecond)
	store.StartSweeper(5 * time.Millisecond) // no-op
	defer store.Close()

	store.Set("k", 1)

	select {
	case key := <-removed:
		if key != "k" {
			t.Errorf("swept key = %q, want %q", key, "k")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not remove the expired entry")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore[string, int](Config{MaxEntries: 50, TTL: time.Minute}, nil, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i%20)
				store.Set(key, i)
				store.Get(key)
				if i%7 == 0 {
					store.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := store.Len(); got > 50 {
		t.Errorf("Len() = %d, exceeds capacity 50", got)
	}
}

func TestEvictReason_String(t *testing.T) {
	tests := []struct {
		reason EvictReason
		want   string
	}{
		{EvictExpired, "expired"},
		{EvictCapacity, "capacity"},
		{EvictDeleted, "deleted"},
		{EvictCleared, "cleared"},
		{EvictReason(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
