// Package ratelimit keeps outgoing sends within the server's per-client
// request window so history saves are not rejected with 429.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultWindow = time.Minute
	DefaultMax    = 15
)

// Limiter is a sliding-window counter of recent sends.
type Limiter struct {
	mu       sync.Mutex
	attempts []time.Time
	window   time.Duration
	max      int
	clock    clock.Clock
}

func New(max int, window time.Duration, clk clock.Clock) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{max: max, window: window, clock: clk}
}

// Allow records a send and reports whether it fits in the window. Refused
// sends are not recorded.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)
	recent := l.attempts[:0]
	for _, t := range l.attempts {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	l.attempts = recent

	if len(recent) >= l.max {
		return false
	}
	l.attempts = append(l.attempts, now)
	return true
}

// Retry returns how long until the next send would be allowed.
func (l *Limiter) Retry() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.attempts) < l.max {
		return 0
	}
	wait := l.attempts[0].Add(l.window).Sub(l.clock.Now())
	if wait < 0 {
		return 0
	}
	return wait
}
