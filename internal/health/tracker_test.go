package health

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClock is a mutable clock for deterministic window/cooldown tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestTracker(clock *fakeClock) *Tracker {
	tr := NewTracker(DefaultPolicy(), testLogger())
	tr.SetClock(clock.Now)
	return tr
}

func TestTracker_SingleFailureDoesNotBlacklist(t *testing.T) {
	tr := newTestTracker(newFakeClock())

	tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	assert.True(t, tr.Available("anthropic"), "one transient error must not blacklist")
}

func TestTracker_ThresholdFailuresTriggerCooldown(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	}
	assert.False(t, tr.Available("anthropic"))

	// Other providers are unaffected.
	assert.True(t, tr.Available("openai"))
}

func TestTracker_CooldownExpiresAndProbes(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	}
	require.False(t, tr.Available("anthropic"))

	clock.Advance(31 * time.Second)

	// First check after cooldown admits one speculative probe.
	assert.True(t, tr.Available("anthropic"))
	// While the probe is in flight no second attempt is admitted.
	assert.False(t, tr.Available("anthropic"))

	// A failed probe re-enters cooldown.
	tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	assert.False(t, tr.Available("anthropic"))
}

func TestTracker_AbandonedProbeIsReleased(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	}
	clock.Advance(31 * time.Second)

	// Probe admitted, but the attempt is skipped and no outcome is ever
	// recorded.
	require.True(t, tr.Available("anthropic"))
	require.False(t, tr.Available("anthropic"))

	// The unresolved probe holds the provider back only for its lease.
	clock.Advance(10 * time.Second)
	assert.False(t, tr.Available("anthropic"))

	clock.Advance(21 * time.Second)
	assert.True(t, tr.Available("anthropic"), "a probe that never resolves must be released")
}

func TestTracker_ProviderRecoversAfterAbandonedProbe(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	}
	clock.Advance(31 * time.Second)
	require.True(t, tr.Available("anthropic"))

	// Nothing records an outcome for the probe. Much later the provider
	// must be attemptable again; unavailability can never be permanent.
	clock.Advance(24 * time.Hour)
	assert.True(t, tr.Available("anthropic"))

	tr.RecordOutcome("anthropic", true, 80*time.Millisecond)
	assert.True(t, tr.Available("anthropic"))
}

func TestTracker_SuccessClearsCooldownImmediately(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	}
	require.False(t, tr.Available("anthropic"))

	tr.RecordOutcome("anthropic", true, 80*time.Millisecond)
	assert.True(t, tr.Available("anthropic"), "one success during cooldown clears unavailability")
}

func TestTracker_FailuresOutsideWindowDoNotCount(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	tr.RecordOutcome("anthropic", false, 100*time.Millisecond)

	clock.Advance(61 * time.Second)

	// The two old failures aged out; one fresh failure is below threshold.
	tr.RecordOutcome("anthropic", false, 100*time.Millisecond)
	assert.True(t, tr.Available("anthropic"))
}

func TestTracker_Snapshot(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	tr.RecordOutcome("anthropic", true, 200*time.Millisecond)
	tr.RecordOutcome("anthropic", false, 400*time.Millisecond)

	snap := tr.Snapshot()
	h, ok := snap["anthropic"]
	require.True(t, ok)
	assert.True(t, h.Available)
	assert.InDelta(t, 0.5, h.FailureRate, 0.001)
	assert.Greater(t, h.AvgLatencyMs, 0.0)
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tr := NewTracker(DefaultPolicy(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.RecordOutcome("openai", i%2 == 0, 50*time.Millisecond)
			tr.Available("openai")
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	_, ok := snap["openai"]
	assert.True(t, ok)
}
