package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sentientmesh/synapse/internal/models"
)

// OllamaProvider is a chat backend over the Ollama HTTP API, for local models.
type OllamaProvider struct {
	baseURL string
	profile models.ProviderProfile
	client  *http.Client
	logger  *slog.Logger
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(baseURL string, profile models.ProviderProfile, logger *slog.Logger) *OllamaProvider {
	return &OllamaProvider{
		baseURL: baseURL,
		profile: profile,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Profile returns the static catalog entry for this backend.
func (o *OllamaProvider) Profile() models.ProviderProfile {
	return o.profile
}

// Complete dispatches the prompt to Ollama's /api/generate endpoint.
func (o *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	reqBody := ollamaGenerateRequest{
		Model:  req.Model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: false,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("ollama: marshalling request: %w", err)
	}

	url := o.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("ollama: creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return CompletionResponse{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return CompletionResponse{}, fmt.Errorf("ollama: calling API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return CompletionResponse{}, fmt.Errorf("%w: ollama returned %d: %s", ErrRateLimited, resp.StatusCode, string(body))
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return CompletionResponse{}, fmt.Errorf("%w: ollama returned %d: %s", ErrRejected, resp.StatusCode, string(body))
		}
		return CompletionResponse{}, fmt.Errorf("ollama: API returned %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CompletionResponse{}, fmt.Errorf("%w: decoding response: %v", ErrMalformed, err)
	}
	if result.Response == "" {
		return CompletionResponse{}, fmt.Errorf("%w: empty generation", ErrMalformed)
	}

	o.logger.Debug("ollama completion", "model", req.Model)
	return CompletionResponse{Content: result.Response, Model: req.Model}, nil
}
