// Package middleware provides the process-wide upstream rate gate and the
// request-scoped logging helpers shared by the retrieval services.
//
// This file implements a fixed-window rate limiter with:
//   - One budget per process, shared by every query key
//   - Lazy window rollover (no background goroutines)
//   - Counters for rejections and rejections absorbed by stale cache values
//   - Injectable clock for deterministic tests
//
// Design Notes:
//   - The budget models a single upstream credential's global quota, so the
//     limiter is not keyed
//   - A window starts at the first acquisition after the previous window
//     elapsed; it restarts when now >= windowStart + window
//   - Rejected acquisitions never consume budget
//
// Algorithm:
//   - TryAcquire locks, rolls the window if elapsed, then increments the
//     count if count < max
//   - The critical section is a handful of integer operations
//
// Complexity:
//   - TryAcquire(): O(1)
//   - Memory: constant
package middleware

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wikifeed/feedengine/pkg/models"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// WindowLimiter enforces at most max acquisitions per window.
//
// Example usage:
//
//	limiter := NewWindowLimiter(20, time.Minute)
//	if !limiter.TryAcquire() {
//	    // serve stale or fail with ErrRateBudgetExhausted
//	}
type WindowLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	windowStart time.Time
	count       int
	now         Clock

	acquired          atomic.Uint64
	rejected          atomic.Uint64
	rejectionFallback atomic.Uint64
}

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock overrides the limiter's time source.
func WithClock(c Clock) Option {
	return func(l *WindowLimiter) {
		if c != nil {
			l.now = c
		}
	}
}

// NewWindowLimiter creates a limiter allowing max calls per window.
// A non-positive max rejects every call.
func NewWindowLimiter(max int, window time.Duration, opts ...Option) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &WindowLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire consumes one unit of budget, returning false when the current
// window is exhausted. It never blocks.
func (l *WindowLimiter) TryAcquire() bool {
	l.mu.Lock()
	now := l.now()
	if l.windowStart.IsZero() || !now.Before(l.windowStart.Add(l.window)) {
		l.windowStart = now
		l.count = 0
	}
	ok := l.count < l.max
	if ok {
		l.count++
	}
	l.mu.Unlock()

	if ok {
		l.acquired.Add(1)
	} else {
		l.rejected.Add(1)
	}
	return ok
}

// RecordRejectionFallback notes that a rejected acquisition was answered
// from a stale cache value instead of failing.
func (l *WindowLimiter) RecordRejectionFallback() {
	l.rejectionFallback.Add(1)
}

// Window returns the current window state.
func (l *WindowLimiter) Window() models.RateWindow {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := models.RateWindow{
		WindowStart: l.windowStart,
		Count:       l.count,
		Max:         l.max,
		Window:      l.window,
	}
	if !l.windowStart.IsZero() && !l.now().Before(l.windowStart.Add(l.window)) {
		w.Count = 0
	}
	return w
}

// Reset clears the current window.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowStart = time.Time{}
	l.count = 0
}

// Stats holds limiter counters.
type Stats struct {
	Acquired          uint64            `json:"acquired"`
	Rejected          uint64            `json:"rejected"`
	RejectionFallback uint64            `json:"rejection_fallback"`
	Window            models.RateWindow `json:"window"`
}

// GetStats returns current limiter statistics.
func (l *WindowLimiter) GetStats() Stats {
	return Stats{
		Acquired:          l.acquired.Load(),
		Rejected:          l.rejected.Load(),
		RejectionFallback: l.rejectionFallback.Load(),
		Window:            l.Window(),
	}
}
