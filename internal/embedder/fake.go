package embedder

import (
	"context"
	"errors"
	"hash/fnv"
)

// ErrUnavailable is returned by a FakeEmbedder configured to fail.
var ErrUnavailable = errors.New("embedder unavailable")

// FakeEmbedder is a deterministic in-process embedder for tests. Identical
// texts embed to identical vectors; different texts almost never collide.
type FakeEmbedder struct {
	Dim  int
	Fail bool
}

// NewFakeEmbedder creates a fake embedder with the given dimension.
func NewFakeEmbedder(dim int) *FakeEmbedder {
	return &FakeEmbedder{Dim: dim}
}

// Embed hashes the text into a deterministic pseudo-vector.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.Fail {
		return nil, ErrUnavailable
	}
	vec := make([]float32, f.Dim)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map to [-1, 1).
		vec[i] = float32(int64(seed>>11))/float32(1<<52) - 1
	}
	return vec, nil
}

// Dimension returns the configured dimension.
func (f *FakeEmbedder) Dimension() int {
	return f.Dim
}
