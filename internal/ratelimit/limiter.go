// Package ratelimit bounds inbound request attempts per client identity.
package ratelimit

import (
	"sync"
	"time"
)

// sweepEvery bounds how often the limiter scans for idle entries.
const sweepEvery = 64

// Limiter counts attempts per key within a fixed window. Entries are created
// lazily on first use and evicted after idleTTL of inactivity so the map stays
// bounded. All methods are safe for concurrent use; contention is on a single
// mutex, which is fine at webhook rates.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	idleTTL time.Duration
	now     func() time.Time
	entries map[string]*entry
	calls   int
}

type entry struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// NewLimiter creates a limiter allowing limit attempts per window for each
// key. now may be nil outside tests.
func NewLimiter(limit int, window, idleTTL time.Duration, now func() time.Time) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if idleTTL < window {
		idleTTL = window
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		idleTTL: idleTTL,
		now:     now,
		entries: make(map[string]*entry),
	}
}

// Allow records an attempt for key and reports whether it is within the
// limit. The attempt is counted either way: the limit bounds attempts, not
// successes. When rejected, retryAfter tells the caller when the current
// window rolls over.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	e, exists := l.entries[key]
	if !exists {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}
	if now.Sub(e.windowStart) >= l.window {
		e.count = 0
		e.windowStart = now
	}
	e.lastSeen = now
	e.count++

	if e.count > l.limit {
		return false, e.windowStart.Add(l.window).Sub(now)
	}
	return true, 0
}

// Len reports the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.entries, key)
		}
	}
}
