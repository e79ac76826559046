// Package contextbuilder assembles the memory context for a chat turn. It
// retrieves the most similar past exchanges across all of a user's sessions
// and renders them into a bounded context block for the response generator.
package contextbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

const (
	// DefaultTopK is the number of similar past exchanges retrieved per turn.
	DefaultTopK = 5

	// DefaultBudget is the maximum rendered context size in characters.
	DefaultBudget = 4000

	// DefaultMinSimilarity filters out retrieved exchanges that are not
	// semantically close enough to the new query.
	DefaultMinSimilarity = 0.6

	// responsePreviewLen caps how much of a past response is quoted.
	responsePreviewLen = 80
)

// TurnContext is the assembled memory for one chat turn.
type TurnContext struct {
	// SessionHistory is the chronological replay of the current session.
	SessionHistory []*model.ConversationRecord

	// Similar holds cross-session exchanges ranked by similarity descending.
	Similar []*model.ScoredRecord

	// Degraded is set when embedding generation failed and similarity
	// retrieval was skipped. Session history is still present.
	Degraded bool
}

// MemoryBlock renders the similar exchanges as a prompt fragment. Returns an
// empty string when there is nothing relevant to include.
func (t *TurnContext) MemoryBlock() string {
	if len(t.Similar) == 0 {
		return ""
	}
	parts := make([]string, 0, len(t.Similar)+1)
	parts = append(parts, "Relevant past conversations:")
	for _, s := range t.Similar {
		parts = append(parts, fmt.Sprintf("- Past Q: '%s' (Response: '%s...')",
			s.Record.UserQuery, truncate(s.Record.AssistantResponse, responsePreviewLen)))
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Builder assembles TurnContexts from the conversation repository.
type Builder struct {
	repo          interfaces.ConversationRepository
	embedder      interfaces.Embedder
	topK          int
	budget        int
	minSimilarity float64
}

type Option func(*Builder)

// WithTopK sets the number of similar exchanges retrieved per turn.
func WithTopK(k int) Option {
	return func(b *Builder) {
		if k > 0 {
			b.topK = k
		}
	}
}

// WithBudget sets the maximum rendered context size in characters.
func WithBudget(chars int) Option {
	return func(b *Builder) {
		if chars > 0 {
			b.budget = chars
		}
	}
}

// WithMinSimilarity sets the relevance cutoff for retrieved exchanges.
func WithMinSimilarity(threshold float64) Option {
	return func(b *Builder) {
		b.minSimilarity = threshold
	}
}

func New(repo interfaces.ConversationRepository, embedder interfaces.Embedder, opts ...Option) *Builder {
	b := &Builder{
		repo:          repo,
		embedder:      embedder,
		topK:          DefaultTopK,
		budget:        DefaultBudget,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the turn context for a new query. Session replay and
// similarity retrieval run concurrently. An embedding failure degrades the
// turn instead of failing it: the context comes back without similar
// exchanges and with Degraded set.
func (b *Builder) Build(ctx context.Context, userID types.UserID, sessionID types.SessionID, query string) (*TurnContext, error) {
	if err := userID.Validate(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "query must not be empty")
	}

	turn := &TurnContext{}

	eg, egCtx := errgroup.WithContext(ctx)

	if sessionID != "" {
		eg.Go(func() error {
			history, err := b.repo.GetSessionHistory(egCtx, userID, sessionID)
			if err != nil {
				return goerr.Wrap(err, "failed to load session history",
					goerr.V("sessionID", sessionID),
				)
			}
			turn.SessionHistory = history
			return nil
		})
	}

	eg.Go(func() error {
		embedding, err := b.embedder.Embed(egCtx, query)
		if err != nil {
			logging.From(egCtx).Warn("embedding failed, continuing without memory context",
				"userID", userID,
				"error", err,
			)
			turn.Degraded = true
			return nil
		}

		scored, err := b.repo.QuerySimilar(egCtx, userID, embedding, b.topK)
		if err != nil {
			return goerr.Wrap(err, "failed to query similar conversations",
				goerr.V("userID", userID),
			)
		}
		turn.Similar = b.selectRelevant(scored)
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return turn, nil
}

// selectRelevant applies the similarity cutoff and the character budget. The
// input is ranked by similarity descending, so trimming from the tail drops
// the lowest-similarity entries first.
func (b *Builder) selectRelevant(scored []*model.ScoredRecord) []*model.ScoredRecord {
	kept := make([]*model.ScoredRecord, 0, len(scored))
	for _, s := range scored {
		if s.Similarity < b.minSimilarity {
			continue
		}
		kept = append(kept, s)
	}

	for len(kept) > 0 {
		probe := &TurnContext{Similar: kept}
		if len(probe.MemoryBlock()) <= b.budget {
			break
		}
		kept = kept[:len(kept)-1]
	}
	return kept
}
