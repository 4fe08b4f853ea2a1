package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentientmesh/synapse/internal/models"
)

// OpenAIProvider is a chat backend over the OpenAI chat completions API.
type OpenAIProvider struct {
	client  *openai.Client
	profile models.ProviderProfile
	logger  *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(apiKey string, profile models.ProviderProfile, logger *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:  openai.NewClient(apiKey),
		profile: profile,
		logger:  logger,
	}
}

// Profile returns the static catalog entry for this backend.
func (o *OpenAIProvider) Profile() models.ProviderProfile {
	return o.profile
}

// Complete dispatches the prompt to the OpenAI chat completions API.
func (o *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	if req.System != "" {
		chatReq.Messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
		}, chatReq.Messages...)
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return CompletionResponse{}, o.classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return CompletionResponse{}, fmt.Errorf("%w: no choices in response", ErrMalformed)
	}

	o.logger.Debug("openai completion", "model", req.Model, "finish_reason", resp.Choices[0].FinishReason)
	return CompletionResponse{Content: resp.Choices[0].Message.Content, Model: req.Model}, nil
}

// classify maps SDK failures onto the package's error taxonomy.
func (o *OpenAIProvider) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return fmt.Errorf("openai: calling chat API: %w", err)
}
