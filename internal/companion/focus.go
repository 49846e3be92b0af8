package companion

import (
	"sync"
	"time"
)

// focusTracker measures time spent on sites that are not blocked. A visit to
// a blocked site stops the timer and yields the whole minutes accumulated.
type focusTracker struct {
	mu    sync.Mutex
	start time.Time
}

// visitAllowed starts the timer if it is not already running.
func (f *focusTracker) visitAllowed(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.start.IsZero() {
		f.start = now
	}
}

// visitBlocked stops the timer and returns the focused whole minutes.
func (f *focusTracker) visitBlocked(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.start.IsZero() {
		return 0
	}
	elapsed := now.Sub(f.start)
	f.start = time.Time{}
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}
