package embedder

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIDefaultModel = string(openai.SmallEmbedding3)
	openAIDefaultDim   = 768
)

// OpenAIEmbedder implements Embedder using the OpenAI Embeddings API.
// It requests a reduced dimensions parameter so vectors stay compatible
// with collections created for other embedding backends.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// NewOpenAIEmbedder creates a new OpenAI-based embedder.
// model defaults to text-embedding-3-small when empty; dimensions defaults
// to 768 when 0.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, logger *slog.Logger) *OpenAIEmbedder {
	if model == "" {
		model = openAIDefaultModel
	}
	if dimensions <= 0 {
		dimensions = openAIDefaultDim
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
		logger:     logger,
	}
}

// Embed returns a vector embedding for the given text using the OpenAI API.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(o.model),
		Input:      []string{text},
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: calling API: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embedder: no embedding in response")
	}

	o.logger.Debug("generated embedding via OpenAI", "model", o.model, "dimension", len(resp.Data[0].Embedding))
	return resp.Data[0].Embedding, nil
}

// Dimension returns the configured embedding dimension.
func (o *OpenAIEmbedder) Dimension() int {
	return o.dimensions
}
