package ratelimit

import (
	"sync"
	"time"
)

// Limiter caps how many events a user may emit within a sliding window.
// State is in-memory only: it resets on restart and is not shared across
// processes. Growth is bounded by pruning expired timestamps on every call.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[int][]time.Time
	now    func() time.Time
}

// New builds a Limiter allowing limit events per window per user.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		events: make(map[int][]time.Time),
		now:    time.Now,
	}
}

// Allow prunes expired timestamps for the user, then either records the
// current event and returns true, or returns false without recording when the
// user is already at the limit.
func (l *Limiter) Allow(userID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.events[userID][:0]
	for _, ts := range l.events[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.events[userID] = kept
		return false
	}

	l.events[userID] = append(kept, now)
	return true
}

// Forget drops a user's record entirely, e.g. after their last disconnect.
func (l *Limiter) Forget(userID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, userID)
}
