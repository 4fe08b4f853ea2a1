package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sentientmesh/synapse/internal/models"
)

// AnthropicProvider is a chat backend over the Anthropic Messages API.
type AnthropicProvider struct {
	client  *anthropic.Client
	profile models.ProviderProfile
	logger  *slog.Logger
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(apiKey string, profile models.ProviderProfile, logger *slog.Logger) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client:  &client,
		profile: profile,
		logger:  logger,
	}
}

// Profile returns the static catalog entry for this backend.
func (a *AnthropicProvider) Profile() models.ProviderProfile {
	return a.profile
}

// Complete dispatches the prompt to the Anthropic Messages API.
func (a *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(req.Prompt),
			),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, a.classify(err)
	}

	var content string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			content = resp.Content[i].Text
			break
		}
	}
	if content == "" {
		return CompletionResponse{}, fmt.Errorf("%w: empty message content", ErrMalformed)
	}

	a.logger.Debug("anthropic completion", "model", req.Model, "stop_reason", resp.StopReason)
	return CompletionResponse{Content: content, Model: req.Model}, nil
}

// classify maps SDK failures onto the package's error taxonomy.
func (a *AnthropicProvider) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return fmt.Errorf("anthropic: calling messages API: %w", err)
}
