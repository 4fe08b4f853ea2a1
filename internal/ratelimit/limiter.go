// Package ratelimit provides per-(user, provider) token-bucket admission
// control. Its job is to protect upstream quota, not to throttle normal
// usage: defaults are deliberately generous, and an overly strict default is
// treated as a correctness bug.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// BucketConfig holds token-bucket parameters for one provider.
type BucketConfig struct {
	// Capacity is the burst size of the bucket.
	Capacity float64
	// RefillPerSecond is the steady-state admission rate.
	RefillPerSecond float64
}

// DefaultBucketConfig returns the default bucket: 120 burst, 2/s refill
// (120+ requests per minute sustained).
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{Capacity: 120, RefillPerSecond: 2}
}

// bucket is the mutable state for one (user, provider) key.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// Limiter admits or rejects attempts per (user, provider) pair. Safe for
// concurrent use; constructed once at process start and shared by reference.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	defaults  BucketConfig
	overrides map[string]BucketConfig // per-provider
	logger    *slog.Logger
	now       func() time.Time
}

// NewLimiter creates a limiter with the given default bucket parameters and
// optional per-provider overrides.
func NewLimiter(defaults BucketConfig, overrides map[string]BucketConfig, logger *slog.Logger) *Limiter {
	if defaults.Capacity <= 0 {
		defaults.Capacity = DefaultBucketConfig().Capacity
	}
	if defaults.RefillPerSecond <= 0 {
		defaults.RefillPerSecond = DefaultBucketConfig().RefillPerSecond
	}
	return &Limiter{
		buckets:   make(map[string]*bucket),
		defaults:  defaults,
		overrides: overrides,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the limiter's clock. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// TryAcquire takes one token from the (userID, provider) bucket. It never
// blocks. A false return is not an error: callers treat it exactly like an
// unavailable provider and move to the next candidate.
func (l *Limiter) TryAcquire(userID, provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.config(provider)
	key := userID + "/" + provider
	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: cfg.Capacity, lastFill: now}
		l.buckets[key] = b
	}

	// Refill from elapsed time, capped at capacity.
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * cfg.RefillPerSecond
		if b.tokens > cfg.Capacity {
			b.tokens = cfg.Capacity
		}
		b.lastFill = now
	}

	if b.tokens < 1 {
		if l.logger != nil {
			l.logger.Debug("rate limit rejected attempt", "user", userID, "provider", provider)
		}
		return false
	}
	b.tokens--
	return true
}

func (l *Limiter) config(provider string) BucketConfig {
	if cfg, ok := l.overrides[provider]; ok {
		if cfg.Capacity > 0 && cfg.RefillPerSecond > 0 {
			return cfg
		}
	}
	return l.defaults
}
