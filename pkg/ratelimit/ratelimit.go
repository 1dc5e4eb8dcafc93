// Package ratelimit enforces per-connector sliding-window request budgets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter consumes one request slot for key when the window allows it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit models.RateLimit) (Result, error)
	// BlockFor rejects every request for key until d elapses.
	BlockFor(ctx context.Context, key string, d time.Duration) error
}

// MemoryLimiter is a process-local sliding window limiter keyed by connector id.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	blocked map[string]time.Time
	now     func() time.Time
}

// NewMemoryLimiter creates a new in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		blocked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit models.RateLimit) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if until, ok := l.blocked[key]; ok {
		if now.Before(until) {
			return Result{Allowed: false, RetryAfter: until.Sub(now)}, nil
		}
		delete(l.blocked, key)
	}

	windowStart := now.Add(-limit.Window)
	stamps := l.windows[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit.Requests {
		l.windows[key] = kept
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: kept[0].Add(limit.Window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return Result{Allowed: true, Remaining: limit.Requests - len(kept)}, nil
}

func (l *MemoryLimiter) BlockFor(_ context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocked[key] = l.now().Add(d)
	return nil
}

// Reset forgets every counter for key.
func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	delete(l.blocked, key)
}
