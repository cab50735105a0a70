package worker

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements per-file rate limiting for re-verification
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter
func NewLimiter(eventsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  rate.Limit(eventsPerSecond),
		defaultBurst: burst,
	}
}

// NewIntervalLimiter creates a limiter allowing one event per interval
func NewIntervalLimiter(interval time.Duration, burst int) *Limiter {
	if interval <= 0 {
		return NewLimiter(float64(rate.Inf), burst)
	}
	return NewLimiter(float64(rate.Every(interval)), burst)
}

// Wait waits for rate limit clearance for the given path
func (l *Limiter) Wait(ctx context.Context, path string) error {
	return l.getLimiter(path).Wait(ctx)
}

// Allow checks if an event is allowed without waiting
func (l *Limiter) Allow(path string) bool {
	return l.getLimiter(path).Allow()
}

// getLimiter returns the rate limiter for a path
func (l *Limiter) getLimiter(path string) *rate.Limiter {
	key := filepath.Clean(path)

	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter

	return limiter
}

// SetPathRate sets a custom rate limit for a specific path
func (l *Limiter) SetPathRate(path string, eventsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[filepath.Clean(path)] = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}

// WaitWithDelay waits for rate limit and adds an additional delay, letting
// a burst of writes to the same file settle
func (l *Limiter) WaitWithDelay(ctx context.Context, path string, additionalDelay time.Duration) error {
	if err := l.Wait(ctx, path); err != nil {
		return err
	}

	if additionalDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(additionalDelay):
		}
	}

	return nil
}
