package contextbuilder_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/repository/memory"
	"github.com/metroplan-lab/civitas/pkg/service/contextbuilder"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) Dimensions() int {
	return len(s.vec)
}

func putRecord(t *testing.T, repo interfaces.ConversationRepository, userID types.UserID, sessionID types.SessionID, query, response string, emb []float32, at time.Time) {
	t.Helper()
	_, err := repo.Put(context.Background(), &model.ConversationRecord{
		UserID:            userID,
		SessionID:         sessionID,
		UserQuery:         query,
		AssistantResponse: response,
		Embedding:         emb,
		CreatedAt:         at,
	})
	gt.NoError(t, err).Required()
}

func TestBuild(t *testing.T) {
	userID := types.UserID("citizen-42")
	sessionID := types.NewSessionID()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("filters by similarity threshold", func(t *testing.T) {
		repo := memory.New(4).Conversation()
		putRecord(t, repo, userID, sessionID, "zoning near park", "R-2 residential applies", []float32{1, 0, 0, 0}, base)
		putRecord(t, repo, userID, sessionID, "pool hours", "open until 8pm", []float32{0, 1, 0, 0}, base.Add(time.Minute))

		b := contextbuilder.New(repo, &stubEmbedder{vec: []float32{1, 0, 0, 0}})
		turn, err := b.Build(context.Background(), userID, "", "what zoning applies near the park")
		gt.NoError(t, err).Required()

		gt.Array(t, turn.Similar).Length(1)
		gt.Value(t, turn.Similar[0].Record.UserQuery).Equal("zoning near park")
		gt.False(t, turn.Degraded)
	})

	t.Run("budget drops lowest similarity entries first", func(t *testing.T) {
		repo := memory.New(2).Conversation()
		putRecord(t, repo, userID, sessionID, "close match", strings.Repeat("a", 100), []float32{1, 0}, base)
		putRecord(t, repo, userID, sessionID, "weaker match", strings.Repeat("b", 100), []float32{0.9, 0.4}, base.Add(time.Minute))

		b := contextbuilder.New(repo, &stubEmbedder{vec: []float32{1, 0}},
			contextbuilder.WithBudget(200),
			contextbuilder.WithMinSimilarity(0),
		)
		turn, err := b.Build(context.Background(), userID, "", "anything")
		gt.NoError(t, err).Required()

		gt.Array(t, turn.Similar).Length(1)
		gt.Value(t, turn.Similar[0].Record.UserQuery).Equal("close match")
	})

	t.Run("embedding failure degrades instead of failing", func(t *testing.T) {
		repo := memory.New(4).Conversation()
		putRecord(t, repo, userID, sessionID, "first question", "first answer", []float32{1, 0, 0, 0}, base)

		b := contextbuilder.New(repo, &stubEmbedder{err: errors.New("provider down")})
		turn, err := b.Build(context.Background(), userID, sessionID, "second question")
		gt.NoError(t, err).Required()

		gt.True(t, turn.Degraded)
		gt.Array(t, turn.Similar).Length(0)
		gt.Array(t, turn.SessionHistory).Length(1)
	})

	t.Run("session history is chronological", func(t *testing.T) {
		repo := memory.New(4).Conversation()
		putRecord(t, repo, userID, sessionID, "second", "b", []float32{0, 1, 0, 0}, base.Add(time.Minute))
		putRecord(t, repo, userID, sessionID, "first", "a", []float32{1, 0, 0, 0}, base)

		b := contextbuilder.New(repo, &stubEmbedder{vec: []float32{0, 0, 1, 0}})
		turn, err := b.Build(context.Background(), userID, sessionID, "third")
		gt.NoError(t, err).Required()

		gt.Array(t, turn.SessionHistory).Length(2)
		gt.Value(t, turn.SessionHistory[0].UserQuery).Equal("first")
		gt.Value(t, turn.SessionHistory[1].UserQuery).Equal("second")
	})

	t.Run("rejects empty query", func(t *testing.T) {
		repo := memory.New(4).Conversation()
		b := contextbuilder.New(repo, &stubEmbedder{vec: []float32{1, 0, 0, 0}})
		_, err := b.Build(context.Background(), userID, "", "")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, types.ErrInvalidArgument))
	})
}

func TestMemoryBlock(t *testing.T) {
	t.Run("empty when nothing relevant", func(t *testing.T) {
		turn := &contextbuilder.TurnContext{}
		gt.Value(t, turn.MemoryBlock()).Equal("")
	})

	t.Run("renders ranked entries with response preview", func(t *testing.T) {
		turn := &contextbuilder.TurnContext{
			Similar: []*model.ScoredRecord{
				{
					Record: &model.ConversationRecord{
						UserQuery:         "when is the council meeting",
						AssistantResponse: strings.Repeat("x", 120),
					},
					Similarity: 0.9,
				},
			},
		}
		block := turn.MemoryBlock()
		gt.String(t, block).Contains("Relevant past conversations:")
		gt.String(t, block).Contains("- Past Q: 'when is the council meeting' (Response: '" + strings.Repeat("x", 80) + "...')")
	})
}
