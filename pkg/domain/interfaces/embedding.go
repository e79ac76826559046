package interfaces

import "context"

// Embedder converts text into a fixed-length vector for similarity search.
// Implementations wrap an external model; failures surface as
// types.ErrEmbeddingFailure so callers can fall back to degraded mode.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed embedding vector length
	Dimensions() int
}
