// Package msglog keeps a bounded, newest-first record of dispatch activity
// for replay to newly joined clients.
package msglog

import (
	"sync"
	"time"
)

// Capacity is the maximum number of retained entries. Recording past it
// evicts the oldest entry.
const Capacity = 50

// Entry is one timestamped activity line.
type Entry struct {
	Timestamp time.Time
	Message   string
}

// Log is a bounded newest-first log. Record and Recent are safe to call
// concurrently.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: make([]Entry, 0, Capacity)}
}

// Record prepends a timestamped entry, evicting the oldest once the log is
// full, and returns the new entry.
func (l *Log) Record(message string) Entry {
	entry := Entry{Timestamp: time.Now(), Message: message}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry
	if len(l.entries) > Capacity {
		l.entries = l.entries[:Capacity]
	}
	return entry
}

// Recent returns up to k entries, newest first.
func (l *Log) Recent(k int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if k < 0 {
		k = 0
	}
	if k > len(l.entries) {
		k = len(l.entries)
	}
	out := make([]Entry, k)
	copy(out, l.entries[:k])
	return out
}

// Len reports the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
