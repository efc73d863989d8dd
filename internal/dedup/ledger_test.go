package dedup

import (
	"testing"
	"time"
)

func TestRecordAndSeen(t *testing.T) {
	l := New(10 * time.Second)

	if l.Seen("c1", "m1") {
		t.Error("Seen() = true before Record()")
	}
	l.Record("c1", "m1")
	if !l.Seen("c1", "m1") {
		t.Error("Seen() = false after Record()")
	}
	if l.Seen("c2", "m1") {
		t.Error("fingerprint leaked across chats")
	}
}

func TestExpiry(t *testing.T) {
	l := New(10 * time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.Record("c1", "m1")

	now = now.Add(9 * time.Second)
	if !l.Seen("c1", "m1") {
		t.Error("entry expired before TTL")
	}

	now = now.Add(time.Second)
	if l.Seen("c1", "m1") {
		t.Error("entry still seen after TTL")
	}
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	l := New(10 * time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.Record("c1", "m1")
	l.Record("c1", "m2")
	now = now.Add(11 * time.Second)
	l.Record("c1", "m3")

	if got := l.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (stale entries evicted)", got)
	}
}

func TestZeroTTLDefaults(t *testing.T) {
	l := New(0)
	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", l.ttl, DefaultTTL)
	}
}
