// Package health tracks per-provider rolling success/failure/latency state.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sentientmesh/synapse/internal/models"
)

// Policy holds the thresholds that govern availability transitions.
type Policy struct {
	// FailureThreshold is how many failures within Window mark a provider
	// unavailable. A single transient error never blacklists a provider.
	FailureThreshold int
	// Window is the rolling window failures are counted over.
	Window time.Duration
	// Cooldown is how long an unavailable provider sits out before one
	// speculative attempt is admitted.
	Cooldown time.Duration
}

// DefaultPolicy returns the default availability policy: 3 failures in 60s
// triggers a 30s cooldown.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 3,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
	}
}

// outcome is one recorded attempt result.
type outcome struct {
	at      time.Time
	success bool
}

// providerState is the mutable rolling state for one provider.
type providerState struct {
	recent        []outcome // pruned to the policy window on every update
	ewmaLatencyMs float64
	cooldownUntil time.Time
	// probing marks that the post-cooldown speculative attempt has been
	// handed out and no further attempts are admitted until it resolves.
	// probeExpires bounds how long an unresolved probe holds the provider
	// back: an admitted attempt can be skipped (rate limit) or abandoned
	// (caller cancellation) without ever recording an outcome, and the
	// lease guarantees unavailability still cannot become permanent.
	probing      bool
	probeExpires time.Time
}

// Tracker owns health state for all providers. Constructed once at process
// start and shared by reference; all methods are safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	policy Policy
	states map[string]*providerState
	logger *slog.Logger
	now    func() time.Time // injectable for tests
}

// NewTracker creates a tracker with the given policy.
func NewTracker(policy Policy, logger *slog.Logger) *Tracker {
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = DefaultPolicy().FailureThreshold
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy().Window
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = DefaultPolicy().Cooldown
	}
	return &Tracker{
		policy: policy,
		states: make(map[string]*providerState),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the tracker's clock. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// ewmaAlpha weights the most recent latency sample.
const ewmaAlpha = 0.3

// RecordOutcome updates rolling stats for one completed attempt. Cancelled
// attempts must not be recorded; the orchestrator enforces that.
func (t *Tracker) RecordOutcome(provider string, success bool, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(provider)
	now := t.now()

	st.recent = append(st.recent, outcome{at: now, success: success})
	t.prune(st, now)

	ms := float64(latency.Milliseconds())
	if st.ewmaLatencyMs == 0 {
		st.ewmaLatencyMs = ms
	} else {
		st.ewmaLatencyMs = ewmaAlpha*ms + (1-ewmaAlpha)*st.ewmaLatencyMs
	}

	st.probing = false
	st.probeExpires = time.Time{}

	if success {
		// One success clears unavailability immediately, even mid-cooldown.
		if !st.cooldownUntil.IsZero() {
			t.logger.Info("provider recovered", "provider", provider)
		}
		st.cooldownUntil = time.Time{}
		return
	}

	if t.windowedFailures(st, now) >= t.policy.FailureThreshold {
		st.cooldownUntil = now.Add(t.policy.Cooldown)
		t.logger.Warn("provider marked unavailable",
			"provider", provider,
			"failures", t.windowedFailures(st, now),
			"cooldown_until", st.cooldownUntil)
	}
}

// Available reports whether the provider may be attempted right now.
// After a cooldown expires the first caller is admitted speculatively; the
// provider stays otherwise unavailable until that probe resolves.
func (t *Tracker) Available(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(provider)
	now := t.now()

	if st.cooldownUntil.IsZero() {
		return true
	}
	if now.Before(st.cooldownUntil) {
		return false
	}
	// Cooldown expired: admit one speculative attempt at a time. A probe
	// whose outcome was never recorded is released once its lease passes,
	// so a fresh probe is admitted instead of waiting forever.
	if st.probing && now.Before(st.probeExpires) {
		return false
	}
	st.probing = true
	st.probeExpires = now.Add(t.policy.Cooldown)
	return true
}

// Snapshot returns a read-only view of every tracked provider's health.
func (t *Tracker) Snapshot() map[string]models.ProviderHealth {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make(map[string]models.ProviderHealth, len(t.states))
	for name, st := range t.states {
		t.prune(st, now)
		total := len(st.recent)
		failures := t.windowedFailures(st, now)
		var rate float64
		if total > 0 {
			rate = float64(failures) / float64(total)
		}
		out[name] = models.ProviderHealth{
			Available:     st.cooldownUntil.IsZero() || !now.Before(st.cooldownUntil),
			AvgLatencyMs:  st.ewmaLatencyMs,
			FailureRate:   rate,
			CooldownUntil: st.cooldownUntil,
		}
	}
	return out
}

// --- internal, callers hold t.mu ---

func (t *Tracker) state(provider string) *providerState {
	st, ok := t.states[provider]
	if !ok {
		st = &providerState{}
		t.states[provider] = st
	}
	return st
}

// prune drops outcomes older than the window so state stays O(window), not
// O(history).
func (t *Tracker) prune(st *providerState, now time.Time) {
	cutoff := now.Add(-t.policy.Window)
	i := 0
	for ; i < len(st.recent); i++ {
		if st.recent[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		st.recent = append(st.recent[:0], st.recent[i:]...)
	}
}

func (t *Tracker) windowedFailures(st *providerState, now time.Time) int {
	cutoff := now.Add(-t.policy.Window)
	n := 0
	for _, o := range st.recent {
		if !o.success && o.at.After(cutoff) {
			n++
		}
	}
	return n
}
