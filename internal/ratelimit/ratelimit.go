// Package ratelimit enforces a per-identity sliding window over inbound
// agent requests. Unlike a token bucket, the window is exact: a request
// is allowed iff fewer than cap requests were recorded in the trailing
// window, so a burst that fills the window stays blocked until the oldest
// timestamp ages out.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults applied by NewLimiter when zero values are passed.
const (
	DefaultCap    = 20
	DefaultWindow = 60 * time.Second
)

// Limiter tracks request timestamps per identity.
type Limiter struct {
	mu      sync.Mutex
	cap     int
	window  time.Duration
	history map[string][]time.Time
	nowFn   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(l *Limiter) { l.nowFn = fn }
}

// NewLimiter creates a sliding-window limiter. Non-positive cap or window
// fall back to the defaults.
func NewLimiter(capacity int, window time.Duration, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		cap:     capacity,
		window:  window,
		history: make(map[string][]time.Time),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request from identity may proceed now. A denied
// request is NOT recorded, so hammering a blocked identity does not extend
// its lockout.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	cutoff := now.Add(-l.window)

	// The window is inclusive on both ends: a timestamp exactly at
	// now-window still counts.
	kept := l.history[identity][:0]
	for _, ts := range l.history[identity] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.cap {
		l.history[identity] = kept
		return false
	}

	l.history[identity] = append(kept, now)
	return true
}

// Remaining returns how many requests the identity has left in the current
// window without recording anything.
func (l *Limiter) Remaining(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFn().Add(-l.window)
	n := 0
	for _, ts := range l.history[identity] {
		if !ts.Before(cutoff) {
			n++
		}
	}
	if n >= l.cap {
		return 0
	}
	return l.cap - n
}
