package memory

import "context"

// Embedder converts text to a fixed-dimension vector for similarity
// search. Implementations: mock (deterministic, offline), onnx (local
// all-MiniLM-L6-v2, behind the onnx build tag), cached (ristretto
// decorator over another embedder).
//
// The store treats the embedder as a capability that can fail: a nil
// embedder, an error, or a timeout degrades the affected operation to
// recency ranking and nothing else.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
