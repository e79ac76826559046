package memory

import (
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
)

// Memory is an in-memory repository for development and tests. It implements
// the same contract as the Firestore and chromem backends with a brute-force
// cosine scan for similarity search.
type Memory struct {
	conversation *conversationRepository
}

var _ interfaces.Repository = &Memory{}

// New creates an in-memory repository with the given embedding dimension.
// Dimension 0 falls back to model.DefaultEmbeddingDimension.
func New(dimension int) *Memory {
	if dimension <= 0 {
		dimension = model.DefaultEmbeddingDimension
	}
	return &Memory{
		conversation: newConversationRepository(dimension),
	}
}

func (m *Memory) Conversation() interfaces.ConversationRepository {
	return m.conversation
}

func (m *Memory) Close() error {
	return nil
}
