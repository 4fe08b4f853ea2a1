// Package provider defines the chat backend abstraction and the registry
// that builds deterministic fallback chains.
package provider

import (
	"context"

	"github.com/sentientmesh/synapse/internal/models"
)

// CompletionRequest is one prompt dispatched to a backend.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// CompletionResponse is a backend's answer.
type CompletionResponse struct {
	Content string
	Model   string
}

// Provider is one external AI backend capable of producing a completion.
// Implementations declare their model list and query-type affinities; the
// orchestrator depends only on this interface.
type Provider interface {
	// Profile returns the static catalog entry for this backend.
	Profile() models.ProviderProfile

	// Complete produces a completion for the prompt. Errors should wrap one
	// of the package sentinels (ErrTimeout, ErrRejected, ErrRateLimited,
	// ErrMalformed) so
	// the orchestrator can classify the failure.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
