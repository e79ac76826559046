package config

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/service/contextbuilder"
)

// Memory holds CLI flags for memory retrieval tuning
type Memory struct {
	topK          int
	contextBudget int
	minSimilarity float64
	embedTimeout  time.Duration
}

// Flags returns CLI flags for memory configuration
func (m *Memory) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "memory-top-k",
			Usage:       "Number of similar past exchanges retrieved per chat turn",
			Value:       contextbuilder.DefaultTopK,
			Sources:     cli.EnvVars("CIVITAS_MEMORY_TOP_K"),
			Destination: &m.topK,
		},
		&cli.IntFlag{
			Name:        "memory-context-budget",
			Usage:       "Maximum rendered memory context size in characters",
			Value:       contextbuilder.DefaultBudget,
			Sources:     cli.EnvVars("CIVITAS_MEMORY_CONTEXT_BUDGET"),
			Destination: &m.contextBudget,
		},
		&cli.FloatFlag{
			Name:        "memory-min-similarity",
			Usage:       "Similarity cutoff for retrieved exchanges",
			Value:       contextbuilder.DefaultMinSimilarity,
			Sources:     cli.EnvVars("CIVITAS_MEMORY_MIN_SIMILARITY"),
			Destination: &m.minSimilarity,
		},
		&cli.DurationFlag{
			Name:        "embed-timeout",
			Usage:       "Per-call deadline for embedding generation",
			Value:       15 * time.Second,
			Sources:     cli.EnvVars("CIVITAS_EMBED_TIMEOUT"),
			Destination: &m.embedTimeout,
		},
	}
}

// EmbedTimeout returns the per-call embedding deadline
func (m *Memory) EmbedTimeout() time.Duration {
	return m.embedTimeout
}

// Builder constructs a context builder with the configured tuning
func (m *Memory) Builder(repo interfaces.ConversationRepository, embedder interfaces.Embedder) *contextbuilder.Builder {
	return contextbuilder.New(repo, embedder,
		contextbuilder.WithTopK(m.topK),
		contextbuilder.WithBudget(m.contextBudget),
		contextbuilder.WithMinSimilarity(m.minSimilarity),
	)
}
