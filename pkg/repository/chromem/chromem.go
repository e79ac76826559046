// Package chromem is a conversation repository backed by chromem-go, an
// embedded pure-Go vector database. Records are kept in an in-process
// append-only log for session bookkeeping; each user additionally gets a
// chromem collection holding the indexed embeddings, so similarity search is
// filtered by user at the index level rather than post-filtered.
package chromem

import (
	"context"
	"sort"
	"sync"
	"time"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/m-mizutani/goerr/v2"
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

type Chromem struct {
	conversation *conversationRepository
}

var _ interfaces.Repository = &Chromem{}

// New creates a chromem-backed repository with the given embedding dimension.
// Dimension 0 falls back to model.DefaultEmbeddingDimension.
func New(dimension int) (*Chromem, error) {
	if dimension <= 0 {
		dimension = model.DefaultEmbeddingDimension
	}
	repo, err := newConversationRepository(dimension)
	if err != nil {
		return nil, err
	}
	return &Chromem{conversation: repo}, nil
}

func (c *Chromem) Conversation() interfaces.ConversationRepository {
	return c.conversation
}

func (c *Chromem) Close() error {
	// chromem-go keeps everything in process memory, nothing to release
	return nil
}

type conversationRepository struct {
	mu        sync.RWMutex
	dimension int
	db        *chromemgo.DB

	// authoritative append-only log, keyed by user then record ID
	records map[types.UserID]map[types.RecordID]*model.ConversationRecord

	// per-user similarity index collections
	collections map[types.UserID]*chromemgo.Collection
}

func newConversationRepository(dimension int) (*conversationRepository, error) {
	return &conversationRepository{
		dimension:   dimension,
		db:          chromemgo.NewDB(),
		records:     make(map[types.UserID]map[types.RecordID]*model.ConversationRecord),
		collections: make(map[types.UserID]*chromemgo.Collection),
	}, nil
}

func (r *conversationRepository) collection(userID types.UserID) (*chromemgo.Collection, error) {
	if col, exists := r.collections[userID]; exists {
		return col, nil
	}

	col, err := r.db.CreateCollection("user_"+userID.String(), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(types.ErrStorageUnavailable, "failed to create chromem collection",
			goerr.V("userID", userID),
			goerr.V("cause", err.Error()),
		)
	}
	r.collections[userID] = col
	return col, nil
}

func copyRecord(rec *model.ConversationRecord) *model.ConversationRecord {
	copied := &model.ConversationRecord{
		ID:                rec.ID,
		UserID:            rec.UserID,
		SessionID:         rec.SessionID,
		UserQuery:         rec.UserQuery,
		AssistantResponse: rec.AssistantResponse,
		CreatedAt:         rec.CreatedAt,
	}
	if rec.Embedding != nil {
		copied.Embedding = make([]float32, len(rec.Embedding))
		copy(copied.Embedding, rec.Embedding)
	}
	return copied
}

func (r *conversationRepository) Put(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error) {
	if err := rec.Validate(r.dimension); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyRecord(rec)
	if created.ID == "" {
		created.ID = types.NewRecordID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	// Unindexed records (degraded mode) skip the vector index but stay in
	// the log for history replay.
	if created.Indexed() {
		col, err := r.collection(created.UserID)
		if err != nil {
			return nil, err
		}
		doc := chromemgo.Document{
			ID:        created.ID.String(),
			Content:   created.EmbeddingText(),
			Embedding: created.Embedding,
			Metadata: map[string]string{
				"session_id": created.SessionID.String(),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, goerr.Wrap(types.ErrStorageUnavailable, "failed to add document to chromem",
				goerr.V("recordID", created.ID),
				goerr.V("cause", err.Error()),
			)
		}
	}

	if _, exists := r.records[created.UserID]; !exists {
		r.records[created.UserID] = make(map[types.RecordID]*model.ConversationRecord)
	}
	r.records[created.UserID][created.ID] = created

	return copyRecord(created), nil
}

func (r *conversationRepository) QuerySimilar(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*model.ScoredRecord, error) {
	if limit <= 0 {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "limit must be positive", goerr.V("limit", limit))
	}
	if len(embedding) != r.dimension {
		return nil, goerr.Wrap(types.ErrInvalidArgument, "query embedding dimensionality mismatch",
			goerr.V("got", len(embedding)),
			goerr.V("want", r.dimension),
		)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	col, exists := r.collections[userID]
	if !exists {
		return []*model.ScoredRecord{}, nil
	}

	// chromem rejects nResults larger than the collection size
	n := limit
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []*model.ScoredRecord{}, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(types.ErrStorageUnavailable, "chromem query failed",
			goerr.V("userID", userID),
			goerr.V("cause", err.Error()),
		)
	}

	bucket := r.records[userID]
	scored := make([]*model.ScoredRecord, 0, len(results))
	for _, res := range results {
		rec, ok := bucket[types.RecordID(res.ID)]
		if !ok {
			continue
		}
		scored = append(scored, &model.ScoredRecord{
			Record:     copyRecord(rec),
			Similarity: float64(res.Similarity),
		})
	}

	// chromem orders by similarity already; re-sort to enforce the
	// newest-first tie-break of the repository contract.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Record.CreatedAt.After(scored[j].Record.CreatedAt)
	})

	return scored, nil
}

func (r *conversationRepository) ListSessions(ctx context.Context, userID types.UserID) ([]*model.SessionSummary, error) {
	records, err := r.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	summaries := model.SummarizeSessions(records)
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp.After(summaries[j].LastTimestamp)
	})
	return summaries, nil
}

func (r *conversationRepository) GetSessionHistory(ctx context.Context, userID types.UserID, sessionID types.SessionID) ([]*model.ConversationRecord, error) {
	return r.ListByUser(ctx, userID, []types.SessionID{sessionID})
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID types.UserID, sessionIDs []types.SessionID) ([]*model.ConversationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[types.SessionID]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}

	result := make([]*model.ConversationRecord, 0)
	for _, rec := range r.records[userID] {
		if len(wanted) > 0 && !wanted[rec.SessionID] {
			continue
		}
		result = append(result, copyRecord(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *conversationRepository) Stats(ctx context.Context) (*model.MemoryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.MemoryStats{
		RecordsPerUser: make(map[types.UserID]int),
	}
	sessions := make(map[types.SessionID]bool)
	for userID, bucket := range r.records {
		if len(bucket) == 0 {
			continue
		}
		stats.UniqueUsers++
		stats.RecordsPerUser[userID] = len(bucket)
		stats.TotalRecords += len(bucket)
		for _, rec := range bucket {
			sessions[rec.SessionID] = true
		}
	}
	stats.UniqueSessions = len(sessions)
	return stats, nil
}

func (r *conversationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for userID, bucket := range r.records {
		var expired []string
		for id, rec := range bucket {
			if rec.CreatedAt.Before(cutoff) {
				if rec.Indexed() {
					expired = append(expired, id.String())
				}
				delete(bucket, id)
				deleted++
			}
		}
		if len(expired) > 0 {
			if col, exists := r.collections[userID]; exists {
				if err := col.Delete(ctx, nil, nil, expired...); err != nil {
					return deleted, goerr.Wrap(types.ErrStorageUnavailable, "failed to delete chromem documents",
						goerr.V("userID", userID),
						goerr.V("cause", err.Error()),
					)
				}
			}
		}
	}
	return deleted, nil
}
