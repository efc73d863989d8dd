// Package throttle rate-limits fetch operations, both globally and per chat.
package throttle

import (
	"sync"
	"time"
)

// GlobalScope is the scope name for the store-wide fetch window.
const GlobalScope = "global"

// Default throttle windows.
const (
	DefaultGlobalWindow = 5 * time.Second
	DefaultChatWindow   = 3 * time.Second
)

// Gate enforces minimum intervals between redundant fetches. Checking and
// stamping are deliberately split: callers stamp with RecordFetch when a
// fetch is initiated, not when it completes, so slow networks cannot cause
// a thundering herd of retries.
type Gate struct {
	mu           sync.Mutex
	globalWindow time.Duration
	chatWindow   time.Duration
	stamps       map[string]time.Time
	resyncActive bool
	now          func() time.Time
}

// New creates a gate. Non-positive windows fall back to the defaults.
func New(globalWindow, chatWindow time.Duration) *Gate {
	if globalWindow <= 0 {
		globalWindow = DefaultGlobalWindow
	}
	if chatWindow <= 0 {
		chatWindow = DefaultChatWindow
	}
	return &Gate{
		globalWindow: globalWindow,
		chatWindow:   chatWindow,
		stamps:       make(map[string]time.Time),
		now:          time.Now,
	}
}

// ShouldFetch reports whether a fetch for the scope (GlobalScope or a chat
// id) is allowed. It never stamps; call RecordFetch when initiating.
func (g *Gate) ShouldFetch(scope string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, ok := g.stamps[scope]
	if !ok {
		return true
	}
	window := g.chatWindow
	if scope == GlobalScope {
		window = g.globalWindow
	}
	return g.now().Sub(last) >= window
}

// RecordFetch stamps the scope with the current time. Stamped on every
// attempt, success or failure.
func (g *Gate) RecordFetch(scope string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stamps[scope] = g.now()
}

// TryBeginResync claims the exclusive full-resync slot. A second resync
// requested while one is in flight is dropped, not queued.
func (g *Gate) TryBeginResync() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resyncActive {
		return false
	}
	g.resyncActive = true
	return true
}

// EndResync releases the full-resync slot.
func (g *Gate) EndResync() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resyncActive = false
}
