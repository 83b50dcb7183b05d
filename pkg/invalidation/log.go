package invalidation

import (
	"sync"
	"time"
)

// MaxLogEntries bounds the invalidation log. Older entries are dropped.
const MaxLogEntries = 1000

// LogEntry records one processed event.
type LogEntry struct {
	Timestamp          time.Time      `json:"timestamp"`
	EventKey           string         `json:"event_key"`
	EntityID           string         `json:"entity_id,omitempty"`
	AffectedFields     []string       `json:"affected_fields,omitempty"`
	RulesProcessed     int            `json:"rules_processed"`
	EntriesInvalidated int            `json:"entries_invalidated"`
	Source             string         `json:"source"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Duration           time.Duration  `json:"duration"`
	Err                string         `json:"error,omitempty"`
}

// eventLog is a fixed size ring of log entries.
type eventLog struct {
	mu      sync.Mutex
	entries []LogEntry
	start   int
	size    int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{entries: make([]LogEntry, capacity)}
}

func (l *eventLog) append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = e
		l.size++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % capacity
}

// last returns up to n most recent entries, oldest first. n <= 0 returns all.
func (l *eventLog) last(n int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]LogEntry, 0, n)
	capacity := len(l.entries)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%capacity])
	}
	return out
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *eventLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.start = 0
	l.size = 0
}
