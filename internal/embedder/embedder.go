package embedder

import "context"

// Embedder converts text to a fixed-dimension vector. The dimension is
// declared at startup; stored vectors of any other dimension are treated as
// "no vector available" by the retriever rather than an error.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
