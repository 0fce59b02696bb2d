package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Result is the outcome of a single rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the current window resets. Only set when
	// the check was denied.
	RetryAfter time.Duration
}

type window struct {
	start     time.Time
	count     int
	prevCount int
}

// Limiter is a sliding-window counter keyed by an arbitrary string such as
// an IP address or a requester identity. The current window's count is
// combined with a weighted share of the previous window's count so a burst
// straddling a window boundary cannot double the allowed rate.
type Limiter struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*window
	checks  uint64
}

func NewLimiter(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		clock:   clk,
		windows: make(map[string]*window),
	}
}

// pruneEvery bounds how much stale-key garbage accumulates between sweeps.
const pruneEvery = 1024

// Check records one request for the key and reports whether it is within
// limit for the given window size. Denied checks are not counted against
// the key.
func (l *Limiter) Check(key string, limit int, windowSize time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	currentStart := now.Truncate(windowSize)

	l.checks++
	if l.checks%pruneEvery == 0 {
		l.prune(currentStart, windowSize)
	}

	w, ok := l.windows[key]
	if !ok {
		w = &window{start: currentStart}
		l.windows[key] = w
	} else if !w.start.Equal(currentStart) {
		if w.start.Equal(currentStart.Add(-windowSize)) {
			w.prevCount = w.count
		} else {
			w.prevCount = 0
		}
		w.count = 0
		w.start = currentStart
	}

	elapsed := now.Sub(currentStart)
	prevWeight := 1.0 - float64(elapsed)/float64(windowSize)
	effective := w.count + int(float64(w.prevCount)*prevWeight)

	if effective >= limit {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: currentStart.Add(windowSize).Sub(now),
		}
	}

	w.count++
	return Result{
		Allowed:   true,
		Remaining: limit - effective - 1,
	}
}

// prune must be called with the lock held. Drops keys whose windows are too
// old to influence any future check.
func (l *Limiter) prune(currentStart time.Time, windowSize time.Duration) {
	horizon := currentStart.Add(-windowSize)
	for key, w := range l.windows {
		if w.start.Before(horizon) {
			delete(l.windows, key)
		}
	}
}
