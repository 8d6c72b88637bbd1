package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
)

// Firestore is the production implementation of interfaces.Repository.
// Each tier lives in its own collection under users/{userID}; vector search
// uses Firestore FindNearest with cosine distance.
type Firestore struct {
	client       *firestore.Client
	userMemory   *userMemoryRepository
	conversation *conversationMemoryRepository
	summary      *summaryRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.userMemory.collectionPrefix = prefix
		f.conversation.collectionPrefix = prefix
		f.summary.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", databaseID))
	}

	f := &Firestore{
		client:       client,
		userMemory:   newUserMemoryRepository(client),
		conversation: newConversationMemoryRepository(client),
		summary:      newSummaryRepository(client),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) UserMemory() interfaces.UserMemoryRepository {
	return f.userMemory
}

func (f *Firestore) ConversationMemory() interfaces.ConversationMemoryRepository {
	return f.conversation
}

func (f *Firestore) Summary() interfaces.SummaryRepository {
	return f.summary
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// usersCollection is the shared root for all tiers
func usersCollection(client *firestore.Client, prefix string) *firestore.CollectionRef {
	return client.Collection(prefix + "users")
}
