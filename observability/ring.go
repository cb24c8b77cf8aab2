// Package observability holds the in-process state quizd exposes for
// monitoring a running solver: a bounded ring of progress log entries, a
// registry of solve tasks, and an async SQLite event logger for terminal
// states.
//
// The ring and the registry are the only mutable state shared between
// concurrent chains. Both are owned values with accessor methods and a
// lifecycle tied to process start/stop, never package-level globals.
package observability

import (
	"sync"
	"time"
)

// Level classifies a log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Entry is one progress message in the ring.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
}

// Ring is a bounded, append-only log buffer. When full, the oldest entry is
// dropped. Safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewRing creates a ring holding at most max entries. max <= 0 defaults to 200.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = 200
	}
	return &Ring{max: max}
}

// Append adds an entry, evicting the oldest when the ring is full.
func (r *Ring) Append(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.max {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:r.max-1]
	}
	r.entries = append(r.entries, Entry{
		Timestamp: time.Now(),
		Message:   message,
		Level:     level,
	})
}

// Recent returns up to limit of the newest entries, oldest first.
// limit <= 0 returns everything.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

// Len returns the current number of entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear removes all entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}
