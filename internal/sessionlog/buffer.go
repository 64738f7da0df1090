package sessionlog

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds the in-memory session log. 500 entries is enough
// for a long desktop session while keeping memory negligible.
const DefaultCapacity = 500

// Entry is one captured log record, shaped for JSON delivery to the frontend.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
}

// Buffer is a fixed-capacity ring of log entries. Oldest entries are dropped
// when the capacity is exceeded. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	start    int // index of the oldest entry
	count    int
	capacity int
}

// NewBuffer creates a Buffer holding at most capacity entries.
// A capacity <= 0 falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Append records one entry, evicting the oldest when full.
func (b *Buffer) Append(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % b.capacity
	b.entries[idx] = entry
	if b.count < b.capacity {
		b.count++
	} else {
		b.start = (b.start + 1) % b.capacity
	}
}

// Record is an EntryCallback-shaped adapter; wire it into NewTeeHandler.
func (b *Buffer) Record(ts time.Time, level slog.Level, msg string, group string) {
	b.Append(Entry{
		Timestamp: ts,
		Level:     level.String(),
		Message:   msg,
		Source:    group,
	})
}

// Snapshot returns the buffered entries oldest first. The returned slice is
// a copy and safe to retain.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, b.count)
	for i := range b.count {
		out[i] = b.entries[(b.start+i)%b.capacity]
	}
	return out
}

// Len reports the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
