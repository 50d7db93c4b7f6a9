// Package mock provides a deterministic offline embedder for tests and
// for running the memory subsystem without a model. Vectors are seeded
// from a hash of the text, so equal texts always embed identically,
// but there is no real semantic similarity.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so a mock store can later
// be pointed at the real model without re-indexing concerns.
const DefaultDimensions = 384

// Embedder generates hash-seeded unit vectors.
type Embedder struct {
	dims int
}

// New creates a mock embedder with DefaultDimensions.
func New() *Embedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a mock embedder of the given size.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dims: dims}
}

// Embed returns a deterministic unit vector derived from the text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dims)
	for i := range vec {
		// Linear congruential step, mapped to [-1, 1].
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding vector size.
func (m *Embedder) Dimensions() int {
	return m.dims
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
