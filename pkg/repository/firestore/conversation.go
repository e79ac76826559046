package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
)

// wrapStoreErr maps transport-level failures to the storage taxonomy so call
// sites can branch on types.ErrStorageUnavailable for their retry decision.
func wrapStoreErr(err error, msg string, options ...goerr.Option) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		options = append(options, goerr.V("cause", err.Error()))
		return goerr.Wrap(types.ErrStorageUnavailable, msg, options...)
	}
	return goerr.Wrap(err, msg, options...)
}

// distanceField is the document field FindNearest writes the cosine distance
// into. Similarity is reconstructed as 1 - distance.
const distanceField = "vector_distance"

// conversationDoc is the Firestore document representation of
// model.ConversationRecord. Embedding is stored as firestore.Vector32 for
// FindNearest vector search; unindexed records omit the field entirely.
type conversationDoc struct {
	ID                types.RecordID     `firestore:"ID"`
	UserID            types.UserID       `firestore:"UserID"`
	SessionID         types.SessionID    `firestore:"SessionID"`
	UserQuery         string             `firestore:"UserQuery"`
	AssistantResponse string             `firestore:"AssistantResponse"`
	Embedding         firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt         time.Time          `firestore:"CreatedAt"`
}

func toConversationDoc(rec *model.ConversationRecord) *conversationDoc {
	doc := &conversationDoc{
		ID:                rec.ID,
		UserID:            rec.UserID,
		SessionID:         rec.SessionID,
		UserQuery:         rec.UserQuery,
		AssistantResponse: rec.AssistantResponse,
		CreatedAt:         rec.CreatedAt,
	}
	if len(rec.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(rec.Embedding)
	}
	return doc
}

func fromConversationDoc(d *conversationDoc) *model.ConversationRecord {
	rec := &model.ConversationRecord{
		ID:                d.ID,
		UserID:            d.UserID,
		SessionID:         d.SessionID,
		UserQuery:         d.UserQuery,
		AssistantResponse: d.AssistantResponse,
		CreatedAt:         d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		rec.Embedding = []float32(d.Embedding)
	}
	return rec
}

type conversationRepository struct {
	client           *firestore.Client
	dimension        int
	collectionPrefix string
}

func newConversationRepository(client *firestore.Client, dimension int) *conversationRepository {
	return &conversationRepository{client: client, dimension: dimension}
}

// conversations returns the per-user subcollection:
// users/{userID}/conversations
func (r *conversationRepository) conversations(userID types.UserID) *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix+"users").Doc(userID.String()).
		Collection("conversations")
}

func (r *conversationRepository) Put(ctx context.Context, rec *model.ConversationRecord) (*model.ConversationRecord, error) {
	if err := rec.Validate(r.dimension); err != nil {
		return nil, err
	}

	created := *rec
	if created.ID == "" {
		created.ID = types.NewRecordID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	docRef := r.conversations(created.UserID).Doc(created.ID.String())
	if _, err := docRef.Create(ctx, toConversationDoc(&created)); err != nil {
		return nil, wrapStoreErr(err, "failed to write conversation record",
			goerr.V("recordID", created.ID),
		)
	}

	return &created, nil
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

	vq := r.conversations(userID).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	scored := make([]*model.ScoredRecord, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to iterate vector search results",
				goerr.V("userID", userID),
			)
		}

		var d conversationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation record from vector search")
		}

		similarity := 0.0
		if dist, ok := doc.Data()[distanceField].(float64); ok {
			similarity = 1 - dist
		}
		scored = append(scored, &model.ScoredRecord{
			Record:     fromConversationDoc(&d),
			Similarity: similarity,
		})
	}

	// FindNearest orders by distance; re-sort to enforce the newest-first
	// tie-break of the repository contract.
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
	iter := r.conversations(userID).
		Where("SessionID", "==", sessionID.String()).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	return collectRecords(iter)
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID types.UserID, sessionIDs []types.SessionID) ([]*model.ConversationRecord, error) {
	iter := r.conversations(userID).
		OrderBy("CreatedAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	records, err := collectRecords(iter)
	if err != nil {
		return nil, err
	}
	if len(sessionIDs) == 0 {
		return records, nil
	}

	wanted := make(map[types.SessionID]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	filtered := make([]*model.ConversationRecord, 0, len(records))
	for _, rec := range records {
		if wanted[rec.SessionID] {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func (r *conversationRepository) Stats(ctx context.Context) (*model.MemoryStats, error) {
	iter := r.client.CollectionGroup("conversations").Documents(ctx)
	defer iter.Stop()

	stats := &model.MemoryStats{
		RecordsPerUser: make(map[types.UserID]int),
	}
	sessions := make(map[types.SessionID]bool)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to iterate conversation records")
		}

		var d conversationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation record")
		}

		stats.TotalRecords++
		stats.RecordsPerUser[d.UserID]++
		sessions[d.SessionID] = true
	}
	stats.UniqueUsers = len(stats.RecordsPerUser)
	stats.UniqueSessions = len(sessions)
	return stats, nil
}

func (r *conversationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	iter := r.client.CollectionGroup("conversations").
		Where("CreatedAt", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, wrapStoreErr(err, "failed to iterate expired records")
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return deleted, wrapStoreErr(err, "failed to delete expired record",
				goerr.V("path", doc.Ref.Path),
			)
		}
		deleted++
	}
	return deleted, nil
}

func collectRecords(iter *firestore.DocumentIterator) ([]*model.ConversationRecord, error) {
	records := make([]*model.ConversationRecord, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapStoreErr(err, "failed to iterate conversation records")
		}

		var d conversationDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation record")
		}
		records = append(records, fromConversationDoc(&d))
	}
	return records, nil
}
