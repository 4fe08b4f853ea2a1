package provider

import (
	"context"
	"sync"

	"github.com/sentientmesh/synapse/internal/models"
)

// FakeProvider is a scripted in-process backend for tests. Each call to
// Complete consumes the next scripted result; when the script is exhausted
// the last entry repeats.
type FakeProvider struct {
	mu      sync.Mutex
	profile models.ProviderProfile
	script  []FakeResult
	calls   int
	// Requests records every CompletionRequest received, in order.
	Requests []CompletionRequest
}

// FakeResult is one scripted outcome.
type FakeResult struct {
	Content string
	Err     error
}

// NewFakeProvider creates a scripted provider with the given profile.
func NewFakeProvider(profile models.ProviderProfile, script ...FakeResult) *FakeProvider {
	return &FakeProvider{profile: profile, script: script}
}

// Profile returns the static catalog entry for this backend.
func (f *FakeProvider) Profile() models.ProviderProfile {
	return f.profile
}

// Complete returns the next scripted result. It honors context cancellation
// so orchestrator cancellation paths can be exercised.
func (f *FakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return CompletionResponse{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	if len(f.script) == 0 {
		return CompletionResponse{Content: "ok", Model: req.Model}, nil
	}
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++

	r := f.script[idx]
	if r.Err != nil {
		return CompletionResponse{}, r.Err
	}
	return CompletionResponse{Content: r.Content, Model: req.Model}, nil
}

// Calls returns how many times Complete has been invoked.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
