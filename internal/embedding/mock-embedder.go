package embedding

import (
	"context"
	"hash/fnv"

	"github.com/kensaku-io/kensaku/pkg/utils"
)

// MockEmbedder produces deterministic unit vectors from a text hash. Used in
// tests and for running the pipeline without a remote backend.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a mock embedder with the given dimension.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector length.
func (m *MockEmbedder) Dimensions() int { return m.dimensions }

// Embed returns a deterministic normalized vector derived from text.
// Empty text returns (nil, nil), matching the real backends.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, m.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int32(seed>>33)) / float32(1<<31)
	}
	utils.NormalizeL2(vec)
	return vec, nil
}
