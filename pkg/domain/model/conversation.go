package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// DefaultEmbeddingDimension is the dimensionality used unless overridden at
// store initialization (384 matches MiniLM-class sentence embedding models).
const DefaultEmbeddingDimension = 384

// ConversationRecord is one query/response exchange of a conversation.
// Records are append-only: once written they are never updated or deleted
// within normal operation. A record without an embedding is "unindexed":
// it is preserved for session history replay but excluded from similarity
// search.
type ConversationRecord struct {
	ID                types.RecordID
	UserID            types.UserID
	SessionID         types.SessionID
	UserQuery         string
	AssistantResponse string
	Embedding         []float32
	CreatedAt         time.Time
}

// Validate checks required fields and the embedding dimensionality against
// the store's fixed dimension. An empty embedding is allowed (unindexed
// record, degraded mode).
func (r *ConversationRecord) Validate(dimension int) error {
	if err := r.UserID.Validate(); err != nil {
		return err
	}
	if err := r.SessionID.Validate(); err != nil {
		return err
	}
	if r.UserQuery == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "user query cannot be empty")
	}
	if r.AssistantResponse == "" {
		return goerr.Wrap(types.ErrInvalidArgument, "assistant response cannot be empty")
	}
	if len(r.Embedding) > 0 && len(r.Embedding) != dimension {
		return goerr.Wrap(types.ErrInvalidArgument, "embedding dimensionality mismatch",
			goerr.V("got", len(r.Embedding)),
			goerr.V("want", dimension),
		)
	}
	return nil
}

// Indexed reports whether the record carries an embedding and participates
// in similarity search.
func (r *ConversationRecord) Indexed() bool {
	return len(r.Embedding) > 0
}

// EmbeddingText returns the combined text the record's embedding is computed
// over. Embedding the pair rather than the query alone lets a past answer
// match a future question about the same topic.
func (r *ConversationRecord) EmbeddingText() string {
	return fmt.Sprintf("User query: %s\nAssistant response: %s", r.UserQuery, r.AssistantResponse)
}

// ScoredRecord pairs a retrieved record with its cosine similarity to the
// query embedding.
type ScoredRecord struct {
	Record     *ConversationRecord
	Similarity float64
}
