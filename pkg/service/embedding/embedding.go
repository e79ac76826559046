// Package embedding provides embedding generation for conversation memory.
// The production implementation delegates to a gollem LLM client; a
// deterministic local embedder is available for tests and offline runs.
package embedding

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// defaultTimeout bounds a single embedding call so a stalled provider does
// not block the chat turn indefinitely.
const defaultTimeout = 15 * time.Second

type llmEmbedder struct {
	client    gollem.LLMClient
	dimension int
	timeout   time.Duration
}

var _ interfaces.Embedder = &llmEmbedder{}

type Option func(*llmEmbedder)

// WithTimeout overrides the per-call embedding deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *llmEmbedder) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an embedder backed by the given LLM client.
func New(client gollem.LLMClient, dimension int, opts ...Option) interfaces.Embedder {
	e := &llmEmbedder{
		client:    client,
		dimension: dimension,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *llmEmbedder) Dimensions() int {
	return e.dimension
}

func (e *llmEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "embedding input must not be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	embeddings, err := e.client.GenerateEmbedding(ctx, e.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(types.ErrEmbeddingFailure, "failed to generate embedding",
			goerr.V("cause", err.Error()),
		)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, goerr.Wrap(types.ErrEmbeddingFailure, "embedding provider returned empty result")
	}
	if len(embeddings[0]) != e.dimension {
		return nil, goerr.Wrap(types.ErrEmbeddingFailure, "embedding provider returned unexpected dimensionality",
			goerr.V("got", len(embeddings[0])),
			goerr.V("want", e.dimension),
		)
	}

	vec := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}
