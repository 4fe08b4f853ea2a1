package ratelimit

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTryAcquire_CapacityNeverExceeded(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 3, RefillPerSecond: 0.001}, nil, testLogger())

	granted := 0
	for i := 0; i < 10; i++ {
		if l.TryAcquire("u1", "anthropic") {
			granted++
		}
	}
	assert.Equal(t, 3, granted, "admissions must never exceed capacity within a window")
}

func TestTryAcquire_RefillsOverTime(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 2, RefillPerSecond: 1}, nil, testLogger())

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	current := base
	l.SetClock(func() time.Time { return current })

	assert.True(t, l.TryAcquire("u1", "openai"))
	assert.True(t, l.TryAcquire("u1", "openai"))
	assert.False(t, l.TryAcquire("u1", "openai"))

	current = base.Add(1500 * time.Millisecond)
	assert.True(t, l.TryAcquire("u1", "openai"), "1.5s at 1 token/s refills one token")
	assert.False(t, l.TryAcquire("u1", "openai"))
}

func TestTryAcquire_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(BucketConfig{Capacity: 1, RefillPerSecond: 0.001}, nil, testLogger())

	assert.True(t, l.TryAcquire("u1", "anthropic"))
	assert.False(t, l.TryAcquire("u1", "anthropic"))

	// Different user, same provider: separate bucket.
	assert.True(t, l.TryAcquire("u2", "anthropic"))
	// Same user, different provider: separate bucket.
	assert.True(t, l.TryAcquire("u1", "openai"))
}

func TestTryAcquire_PerProviderOverride(t *testing.T) {
	overrides := map[string]BucketConfig{
		"ollama": {Capacity: 1, RefillPerSecond: 0.001},
	}
	l := NewLimiter(DefaultBucketConfig(), overrides, testLogger())

	assert.True(t, l.TryAcquire("u1", "ollama"))
	assert.False(t, l.TryAcquire("u1", "ollama"))
}

// Concurrent callers on the same key must not over-admit.
func TestTryAcquire_ConcurrentSameKey(t *testing.T) {
	const capacity = 10
	l := NewLimiter(BucketConfig{Capacity: capacity, RefillPerSecond: 0.001}, nil, testLogger())

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("u1", "anthropic") {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), granted.Load())
}
