package interfaces

import (
	"context"
	"time"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// ConversationRepository defines the contract for conversation memory
// persistence and retrieval. All backends must satisfy the same semantics:
//
//   - Records are append-only and scoped to a user; one user's records are
//     never visible to another user's queries.
//   - QuerySimilar returns exact top-k by cosine similarity among the user's
//     indexed records, descending, ties broken by newest CreatedAt first.
//   - Absence of history is success: empty results, not errors.
type ConversationRepository interface {
	// Put appends a new immutable record. The record's ID and CreatedAt are
	// assigned at write time when unset. Fails with ErrInvalidArgument on
	// empty required fields or embedding dimensionality mismatch.
	Put(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error)

	// QuerySimilar returns up to limit records of the user ranked descending
	// by cosine similarity to the query embedding. limit must be positive.
	QuerySimilar(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*model.ScoredRecord, error)

	// ListSessions groups the user's records by session and returns the
	// summaries ordered by last activity, most recent first.
	ListSessions(ctx context.Context, userID types.UserID) ([]*model.SessionSummary, error)

	// GetSessionHistory returns all records of the (user, session) pair in
	// chronological order. An unknown session yields an empty slice.
	GetSessionHistory(ctx context.Context, userID types.UserID, sessionID types.SessionID) ([]*model.ConversationRecord, error)

	// ListByUser returns the user's records in chronological order, limited
	// to the given sessions when sessionIDs is non-empty.
	ListByUser(ctx context.Context, userID types.UserID, sessionIDs []types.SessionID) ([]*model.ConversationRecord, error)

	// Stats aggregates store-wide counters
	Stats(ctx context.Context) (*model.MemoryStats, error)

	// DeleteOlderThan removes records created before the cutoff and returns
	// the number removed. This is an administrative retention operation, not
	// part of the normal request flow.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
