package httpapi

import (
	"sync"
	"time"
)

const sweepEvery = 256

// attemptLimiter is a sliding-window counter keyed by action and caller.
type attemptLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	calls   int
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
	}
}

func (l *attemptLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(cutoff)
	}

	ts := recent(l.entries[key], cutoff)
	if len(ts) >= l.max {
		l.entries[key] = ts
		return false
	}
	l.entries[key] = append(ts, now)
	return true
}

// sweep drops keys with no attempt inside the window.
func (l *attemptLimiter) sweep(cutoff time.Time) {
	for k, ts := range l.entries {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.entries, k)
		}
	}
}

func (l *attemptLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func recent(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
