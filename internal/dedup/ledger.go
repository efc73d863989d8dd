// Package dedup tracks recently seen message ids so overlapping sources
// (stream delivery vs. poll fetch vs. optimistic send echo) do not insert
// the same message twice. It is soft admission control with a short expiry
// window, not a correctness guarantee: the store's idempotent merge is the
// final arbiter either way.
package dedup

import (
	"sync"
	"time"
)

// DefaultTTL is the expiry window for ledger entries.
const DefaultTTL = 10 * time.Second

// Ledger is a TTL-bounded set of (chatID, messageID) fingerprints.
type Ledger struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// New creates a ledger with the given expiry window. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func key(chatID, msgID string) string {
	return chatID + "\x00" + msgID
}

// Record remembers a message fingerprint until the expiry window lapses.
func (l *Ledger) Record(chatID, msgID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	l.entries[key(chatID, msgID)] = l.now()
}

// Seen reports whether the fingerprint was recorded within the expiry window.
func (l *Ledger) Seen(chatID, msgID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.entries[key(chatID, msgID)]
	if !ok {
		return false
	}
	if l.now().Sub(at) >= l.ttl {
		delete(l.entries, key(chatID, msgID))
		return false
	}
	return true
}

// Len returns the number of live entries after eviction.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	return len(l.entries)
}

// sweep must be called with the lock held.
func (l *Ledger) sweep() {
	cutoff := l.now().Add(-l.ttl)
	for k, at := range l.entries {
		if !at.After(cutoff) {
			delete(l.entries, k)
		}
	}
}
