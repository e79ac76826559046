package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/repository/chromem"
	"github.com/metroplan-lab/civitas/pkg/repository/firestore"
	"github.com/metroplan-lab/civitas/pkg/repository/memory"
)

const testDimension = 4

// unitVec builds a dimension-sized vector pointing mostly at axis with a
// small bleed to make cosine scores distinct but predictable.
func unitVec(axis int, bleed float32) []float32 {
	v := make([]float32, testDimension)
	v[axis%testDimension] = 1
	v[(axis+1)%testDimension] = bleed
	return v
}

func newRecord(userID types.UserID, sessionID types.SessionID, query string, emb []float32, at time.Time) *model.ConversationRecord {
	return &model.ConversationRecord{
		UserID:            userID,
		SessionID:         sessionID,
		UserQuery:         query,
		AssistantResponse: "response to " + query,
		Embedding:         emb,
		CreatedAt:         at,
	}
}

// freshUser returns a user ID unique per test run so backends with shared
// state (a real Firestore project) stay isolated between runs.
func freshUser(prefix string) types.UserID {
	return types.UserID(prefix + "-" + uuid.NewString()[:8])
}

func runConversationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	t.Run("Put assigns ID and timestamp when unset", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("put")

		created, err := repo.Conversation().Put(ctx, &model.ConversationRecord{
			UserID:            userID,
			SessionID:         types.NewSessionID(),
			UserQuery:         "where do I apply for a permit?",
			AssistantResponse: "at the planning office",
			Embedding:         unitVec(0, 0),
		})
		gt.NoError(t, err).Required()

		gt.Value(t, created.ID).NotEqual(types.RecordID(""))
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("Put rejects dimension mismatch without persisting", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("dim")
		sessionID := types.NewSessionID()

		_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID, "bad vector",
			[]float32{1, 2}, base))
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))

		records, err := repo.Conversation().GetSessionHistory(ctx, userID, sessionID)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(0)
	})

	t.Run("Put rejects empty query and response", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Conversation().Put(ctx, &model.ConversationRecord{
			UserID:    freshUser("empty"),
			SessionID: types.NewSessionID(),
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))
	})

	t.Run("QuerySimilar returns exact top-k sorted by similarity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("topk")
		sessionID := types.NewSessionID()

		// Orthogonal-ish embeddings with known cosine ordering against
		// the probe unitVec(0, 0).
		_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID, "exact", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, sessionID, "close", unitVec(0, 0.5), base.Add(time.Minute)))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, sessionID, "far", unitVec(1, 0), base.Add(2*time.Minute)))
		gt.NoError(t, err).Required()

		scored, err := repo.Conversation().QuerySimilar(ctx, userID, unitVec(0, 0), 2)
		gt.NoError(t, err).Required()

		gt.Array(t, scored).Length(2)
		gt.Value(t, scored[0].Record.UserQuery).Equal("exact")
		gt.Value(t, scored[1].Record.UserQuery).Equal("close")
		gt.True(t, scored[0].Similarity >= scored[1].Similarity)
	})

	t.Run("QuerySimilar breaks ties by newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("ties")
		sessionID := types.NewSessionID()

		_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID, "older", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, sessionID, "newer", unitVec(0, 0), base.Add(time.Hour)))
		gt.NoError(t, err).Required()

		scored, err := repo.Conversation().QuerySimilar(ctx, userID, unitVec(0, 0), 2)
		gt.NoError(t, err).Required()

		gt.Array(t, scored).Length(2)
		gt.Value(t, scored[0].Record.UserQuery).Equal("newer")
		gt.Value(t, scored[1].Record.UserQuery).Equal("older")
	})

	t.Run("QuerySimilar never crosses users", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		alice := freshUser("alice")
		bob := freshUser("bob")

		_, err := repo.Conversation().Put(ctx, newRecord(alice, types.NewSessionID(), "alice question", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(bob, types.NewSessionID(), "bob question", unitVec(0, 0), base))
		gt.NoError(t, err).Required()

		scored, err := repo.Conversation().QuerySimilar(ctx, alice, unitVec(0, 0), 10)
		gt.NoError(t, err).Required()

		gt.Array(t, scored).Length(1)
		gt.Value(t, scored[0].Record.UserQuery).Equal("alice question")
	})

	t.Run("QuerySimilar skips unindexed records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("unindexed")
		sessionID := types.NewSessionID()

		_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID, "indexed", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, sessionID, "degraded", nil, base.Add(time.Minute)))
		gt.NoError(t, err).Required()

		scored, err := repo.Conversation().QuerySimilar(ctx, userID, unitVec(0, 0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(1)
		gt.Value(t, scored[0].Record.UserQuery).Equal("indexed")

		// But the degraded record still replays in history.
		records, err := repo.Conversation().GetSessionHistory(ctx, userID, sessionID)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(2)
	})

	t.Run("QuerySimilar validates arguments", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("args")

		_, err := repo.Conversation().QuerySimilar(ctx, userID, unitVec(0, 0), 0)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))

		_, err = repo.Conversation().QuerySimilar(ctx, userID, []float32{1}, 5)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))
	})

	t.Run("QuerySimilar on empty store returns empty", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		scored, err := repo.Conversation().QuerySimilar(ctx, freshUser("nobody"), unitVec(0, 0), 5)
		gt.NoError(t, err).Required()
		gt.Array(t, scored).Length(0)
	})

	t.Run("GetSessionHistory replays chronologically", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("history")
		sessionID := types.NewSessionID()

		for i := 0; i < 3; i++ {
			_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID,
				fmt.Sprintf("question %d", i), unitVec(i, 0), base.Add(time.Duration(i)*time.Minute)))
			gt.NoError(t, err).Required()
		}

		records, err := repo.Conversation().GetSessionHistory(ctx, userID, sessionID)
		gt.NoError(t, err).Required()

		gt.Array(t, records).Length(3)
		gt.Value(t, records[0].UserQuery).Equal("question 0")
		gt.Value(t, records[2].UserQuery).Equal("question 2")
	})

	t.Run("GetSessionHistory of unknown session is empty, not an error", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		records, err := repo.Conversation().GetSessionHistory(ctx, freshUser("none"), types.NewSessionID())
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(0)
	})

	t.Run("ListSessions aggregates and orders by recency", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("sessions")
		older := types.NewSessionID()
		newer := types.NewSessionID()

		_, err := repo.Conversation().Put(ctx, newRecord(userID, older, "old start", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, older, "old end", unitVec(1, 0), base.Add(time.Minute)))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, newer, "new start", unitVec(2, 0), base.Add(time.Hour)))
		gt.NoError(t, err).Required()

		summaries, err := repo.Conversation().ListSessions(ctx, userID)
		gt.NoError(t, err).Required()

		gt.Array(t, summaries).Length(2)
		gt.Value(t, summaries[0].SessionID).Equal(newer)
		gt.Value(t, summaries[0].MessageCount).Equal(1)
		gt.Value(t, summaries[1].SessionID).Equal(older)
		gt.Value(t, summaries[1].MessageCount).Equal(2)
		gt.Value(t, summaries[1].FirstMessage).Equal("old start")
		gt.Value(t, summaries[1].LastMessage).Equal("old end")
		gt.True(t, summaries[1].FirstTimestamp.Equal(base))
		gt.True(t, summaries[1].LastTimestamp.Equal(base.Add(time.Minute)))
	})

	t.Run("DeleteOlderThan removes only expired records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := freshUser("prune")
		sessionID := types.NewSessionID()

		_, err := repo.Conversation().Put(ctx, newRecord(userID, sessionID, "expired", unitVec(0, 0), base))
		gt.NoError(t, err).Required()
		_, err = repo.Conversation().Put(ctx, newRecord(userID, sessionID, "kept", unitVec(1, 0), base.Add(48*time.Hour)))
		gt.NoError(t, err).Required()

		deleted, err := repo.Conversation().DeleteOlderThan(ctx, base.Add(time.Hour))
		gt.NoError(t, err).Required()
		gt.Value(t, deleted).Equal(1)

		records, err := repo.Conversation().GetSessionHistory(ctx, userID, sessionID)
		gt.NoError(t, err).Required()
		gt.Array(t, records).Length(1)
		gt.Value(t, records[0].UserQuery).Equal("kept")

		// The expired record must be gone from the similarity index too.
		scored, err := repo.Conversation().QuerySimilar(ctx, userID, unitVec(0, 0), 10)
		gt.NoError(t, err).Required()
		for _, s := range scored {
			gt.Value(t, s.Record.UserQuery).NotEqual("expired")
		}
	})
}

func runStatsTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	base := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	repo := newRepo(t)
	ctx := context.Background()
	alice := freshUser("stats-alice")
	bob := freshUser("stats-bob")
	s1 := types.NewSessionID()
	s2 := types.NewSessionID()

	_, err := repo.Conversation().Put(ctx, newRecord(alice, s1, "q1", unitVec(0, 0), base))
	gt.NoError(t, err).Required()
	_, err = repo.Conversation().Put(ctx, newRecord(alice, s1, "q2", unitVec(1, 0), base.Add(time.Minute)))
	gt.NoError(t, err).Required()
	_, err = repo.Conversation().Put(ctx, newRecord(bob, s2, "q3", unitVec(2, 0), base))
	gt.NoError(t, err).Required()

	stats, err := repo.Conversation().Stats(ctx)
	gt.NoError(t, err).Required()

	gt.Value(t, stats.TotalRecords).Equal(3)
	gt.Value(t, stats.UniqueUsers).Equal(2)
	gt.Value(t, stats.UniqueSessions).Equal(2)
	gt.Value(t, stats.RecordsPerUser[alice]).Equal(2)
	gt.Value(t, stats.RecordsPerUser[bob]).Equal(1)
}

func TestMemoryConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New(testDimension)
	})
}

func TestMemoryStats(t *testing.T) {
	runStatsTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New(testDimension)
	})
}

func TestChromemConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := chromem.New(testDimension)
		gt.NoError(t, err).Required()
		return repo
	})
}

func TestChromemStats(t *testing.T) {
	runStatsTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := chromem.New(testDimension)
		gt.NoError(t, err).Required()
		return repo
	})
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID, testDimension,
		firestore.WithCollectionPrefix(fmt.Sprintf("test_%d_", time.Now().UnixNano())))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestFirestoreConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, newFirestoreRepository)
}
