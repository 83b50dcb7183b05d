package cache

import (
	"container/heap"
	"container/list"
	"sync"
	"time"
)

// EvictReason tells an eviction callback why an entry left the store.
type EvictReason int

const (
	// EvictExpired means the entry reached its deadline.
	EvictExpired EvictReason = iota

	// EvictCapacity means the entry was the oldest when the store was full.
	EvictCapacity

	// EvictDeleted means the entry was removed explicitly.
	EvictDeleted

	// EvictCleared means the whole store was cleared.
	EvictCleared
)

// String returns the label used in logs and metrics.
func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	case EvictDeleted:
		return "deleted"
	case EvictCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// EvictFunc is called after an entry has been removed from a Store. It runs
// outside the store lock, so it may call back into the store.
type EvictFunc[K comparable, V any] func(key K, value V, reason EvictReason)

type storeItem[K comparable, V any] struct {
	key   K
	entry Entry[V]
	elem  *list.Element
	index int // position in the expiry heap
}

// expiryHeap orders items by deadline, earliest first.
type expiryHeap[K comparable, V any] []*storeItem[K, V]

func (h expiryHeap[K, V]) Len() int { return len(h) }

func (h expiryHeap[K, V]) Less(i, j int) bool {
	return h[i].entry.ExpiresAt.Before(h[j].entry.ExpiresAt)
}

func (h expiryHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap[K, V]) Push(x any) {
	it := x.(*storeItem[K, V])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *expiryHeap[K, V]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type eviction[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

// Store is a bounded key/value store with per-entry expiry.
//
// Capacity is enforced by evicting the oldest inserted key. Reads never change
// eviction order; with RefreshTTLOnAccess they only push the deadline out.
// Expired entries are purged before every operation using a deadline heap, so
// Len and Keys only ever report live entries. StartSweeper adds a background
// purge for stores that go idle.
type Store[K comparable, V any] struct {
	mu        sync.Mutex
	cfg       Config
	clock     Clock
	items     map[K]*storeItem[K, V]
	order     *list.List
	deadlines expiryHeap[K, V]
	onEvict   EvictFunc[K, V]

	stop chan struct{}
	done chan struct{}
}

// NewStore creates a store for cfg. A nil clock uses the wall clock; onEvict
// may be nil.
func NewStore[K comparable, V any](cfg Config, clock Clock, onEvict EvictFunc[K, V]) *Store[K, V] {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store[K, V]{
		cfg:     cfg,
		clock:   clock,
		items:   make(map[K]*storeItem[K, V]),
		order:   list.New(),
		onEvict: onEvict,
	}
}

// Config returns the configuration the store was created with.
func (s *Store[K, V]) Config() Config {
	return s.cfg
}

// Set inserts or overwrites key. Overwriting keeps the key's insertion
// position and restarts its TTL. Inserting a new key into a full store evicts
// the oldest inserted key first.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	now := s.clock.Now()
	evicted := s.purgeLocked(now)

	entry := Entry[V]{
		Value:      value,
		InsertedAt: now,
		ExpiresAt:  now.Add(s.cfg.ttl()),
	}

	if it, ok := s.items[key]; ok {
		it.entry = entry
		heap.Fix(&s.deadlines, it.index)
		s.mu.Unlock()
		s.notify(evicted)
		return
	}

	if s.cfg.MaxEntries > 0 {
		for len(s.items) >= s.cfg.MaxEntries {
			oldest := s.order.Front().Value.(*storeItem[K, V])
			s.removeLocked(oldest)
			evicted = append(evicted, eviction[K, V]{oldest.key, oldest.entry.Value, EvictCapacity})
		}
	}

	it := &storeItem[K, V]{key: key, entry: entry}
	it.elem = s.order.PushBack(it)
	heap.Push(&s.deadlines, it)
	s.items[key] = it
	s.mu.Unlock()

	s.notify(evicted)
}

// Get returns the value for key if it is present and not expired.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	now := s.clock.Now()
	evicted := s.purgeLocked(now)

	it, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		s.notify(evicted)
		var zero V
		return zero, false
	}

	if s.cfg.RefreshTTLOnAccess {
		it.entry.ExpiresAt = now.Add(s.cfg.ttl())
		heap.Fix(&s.deadlines, it.index)
	}
	value := it.entry.Value
	s.mu.Unlock()

	s.notify(evicted)
	return value, true
}

// Peek returns the entry for key without refreshing its TTL.
func (s *Store[K, V]) Peek(key K) (Entry[V], bool) {
	s.mu.Lock()
	evicted := s.purgeLocked(s.clock.Now())
	it, ok := s.items[key]
	var entry Entry[V]
	if ok {
		entry = it.entry
	}
	s.mu.Unlock()

	s.notify(evicted)
	return entry, ok
}

// Delete removes key and reports whether it was present.
func (s *Store[K, V]) Delete(key K) bool {
	s.mu.Lock()
	evicted := s.purgeLocked(s.clock.Now())
	it, ok := s.items[key]
	if ok {
		s.removeLocked(it)
		evicted = append(evicted, eviction[K, V]{it.key, it.entry.Value, EvictDeleted})
	}
	s.mu.Unlock()

	s.notify(evicted)
	return ok
}

// Clear removes every entry.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	evicted := make([]eviction[K, V], 0, len(s.items))
	for e := s.order.Front(); e != nil; e = e.Next() {
		it := e.Value.(*storeItem[K, V])
		evicted = append(evicted, eviction[K, V]{it.key, it.entry.Value, EvictCleared})
	}
	s.items = make(map[K]*storeItem[K, V])
	s.order.Init()
	s.deadlines = nil
	s.mu.Unlock()

	s.notify(evicted)
}

// Len returns the number of live entries.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	evicted := s.purgeLocked(s.clock.Now())
	n := len(s.items)
	s.mu.Unlock()

	s.notify(evicted)
	return n
}

// Keys returns the live keys in insertion order.
func (s *Store[K, V]) Keys() []K {
	s.mu.Lock()
	evicted := s.purgeLocked(s.clock.Now())
	keys := make([]K, 0, len(s.items))
	for e := s.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*storeItem[K, V]).key)
	}
	s.mu.Unlock()

	s.notify(evicted)
	return keys
}

// Sweep purges expired entries and returns how many were removed.
func (s *Store[K, V]) Sweep() int {
	s.mu.Lock()
	evicted := s.purgeLocked(s.clock.Now())
	s.mu.Unlock()

	s.notify(evicted)
	return len(evicted)
}

// StartSweeper runs Sweep every interval until Close is called. Calling it
// on a store that already sweeps is a no-op.
func (s *Store[K, V]) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Close stops the background sweeper, if any. Entries are kept.
func (s *Store[K, V]) Close() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// purgeLocked removes every entry whose deadline is at or before now.
func (s *Store[K, V]) purgeLocked(now time.Time) []eviction[K, V] {
	var evicted []eviction[K, V]
	for len(s.deadlines) > 0 {
		it := s.deadlines[0]
		if now.Before(it.entry.ExpiresAt) {
			break
		}
		s.removeLocked(it)
		evicted = append(evicted, eviction[K, V]{it.key, it.entry.Value, EvictExpired})
	}
	return evicted
}

func (s *Store[K, V]) removeLocked(it *storeItem[K, V]) {
	delete(s.items, it.key)
	s.order.Remove(it.elem)
	if it.index >= 0 {
		heap.Remove(&s.deadlines, it.index)
	}
}

func (s *Store[K, V]) notify(evicted []eviction[K, V]) {
	if s.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		s.onEvict(ev.key, ev.value, ev.reason)
	}
}
