package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/model"
)

// Firestore is the production repository. Conversation records live in
// users/{userID}/conversations subcollections so that similarity search is
// scoped to a user by construction.
type Firestore struct {
	client       *firestore.Client
	conversation *conversationRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

// WithCollectionPrefix namespaces all collections, for shared test projects
func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.conversation.collectionPrefix = prefix
	}
}

// New creates a Firestore repository. databaseID may be empty for the
// default database. dimension 0 falls back to model.DefaultEmbeddingDimension.
func New(ctx context.Context, projectID, databaseID string, dimension int, opts ...Option) (*Firestore, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID),
		)
	}

	if dimension <= 0 {
		dimension = model.DefaultEmbeddingDimension
	}

	f := &Firestore{
		client:       client,
		conversation: newConversationRepository(client, dimension),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Conversation() interfaces.ConversationRepository {
	return f.conversation
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
