package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

type conversationRepository struct {
	mu        sync.RWMutex
	dimension int
	records   map[types.UserID]map[types.RecordID]*model.ConversationRecord
}

func newConversationRepository(dimension int) *conversationRepository {
	return &conversationRepository{
		dimension: dimension,
		records:   make(map[types.UserID]map[types.RecordID]*model.ConversationRecord),
	}
}

func copyRecord(r *model.ConversationRecord) *model.ConversationRecord {
	copied := &model.ConversationRecord{
		ID:                r.ID,
		UserID:            r.UserID,
		SessionID:         r.SessionID,
		UserQuery:         r.UserQuery,
		AssistantResponse: r.AssistantResponse,
		CreatedAt:         r.CreatedAt,
	}
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
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

	bucket, exists := r.records[userID]
	if !exists {
		return []*model.ScoredRecord{}, nil
	}

	var candidates []*model.ScoredRecord
	for _, rec := range bucket {
		if !rec.Indexed() {
			continue
		}
		candidates = append(candidates, &model.ScoredRecord{
			Record:     copyRecord(rec),
			Similarity: cosineSimilarity(embedding, rec.Embedding),
		})
	}

	sortScored(candidates)

	if limit > len(candidates) {
		limit = len(candidates)
	}
	return candidates[:limit], nil
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
	for _, bucket := range r.records {
		for id, rec := range bucket {
			if rec.CreatedAt.Before(cutoff) {
				delete(bucket, id)
				deleted++
			}
		}
	}
	return deleted, nil
}

// sortScored orders candidates descending by similarity, ties broken by
// newest CreatedAt first.
func sortScored(candidates []*model.ScoredRecord) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Record.CreatedAt.After(candidates[j].Record.CreatedAt)
	})
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
