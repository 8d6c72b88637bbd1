package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
)

// conversationMemoryDoc is the Firestore document representation of
// model.ConversationMemory
type conversationMemoryDoc struct {
	ID             model.TurnMemoryID   `firestore:"ID"`
	UserID         types.UserID         `firestore:"UserID"`
	ConversationID types.ConversationID `firestore:"ConversationID"`
	MessageID      string               `firestore:"MessageID,omitempty"`
	Content        string               `firestore:"Content"`
	Role           types.Role           `firestore:"Role"`
	TurnNumber     int                  `firestore:"TurnNumber"`
	Embedding      firestore.Vector32   `firestore:"Embedding,omitempty"`
	CreatedAt      time.Time            `firestore:"CreatedAt"`
}

func toConversationMemoryDoc(m *model.ConversationMemory) *conversationMemoryDoc {
	doc := &conversationMemoryDoc{
		ID:             m.ID,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		Content:        m.Content,
		Role:           m.Role,
		TurnNumber:     m.TurnNumber,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromConversationMemoryDoc(d *conversationMemoryDoc) *model.ConversationMemory {
	m := &model.ConversationMemory{
		ID:             d.ID,
		UserID:         d.UserID,
		ConversationID: d.ConversationID,
		MessageID:      d.MessageID,
		Content:        d.Content,
		Role:           d.Role,
		TurnNumber:     d.TurnNumber,
		CreatedAt:      d.CreatedAt,
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m
}

type conversationMemoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newConversationMemoryRepository(client *firestore.Client) *conversationMemoryRepository {
	return &conversationMemoryRepository{client: client}
}

// turnsCollection returns the subcollection path:
// users/{userID}/conversations/{conversationID}/turns
func (r *conversationMemoryRepository) turnsCollection(userID types.UserID, conversationID types.ConversationID) *firestore.CollectionRef {
	return usersCollection(r.client, r.collectionPrefix).Doc(string(userID)).
		Collection("conversations").Doc(string(conversationID)).
		Collection("turns")
}

func (r *conversationMemoryRepository) Put(ctx context.Context, mem *model.ConversationMemory) (*model.ConversationMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation memory")
	}

	if mem.ID == "" {
		mem.ID = model.NewTurnMemoryID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	docRef := r.turnsCollection(mem.UserID, mem.ConversationID).Doc(string(mem.ID))
	if _, err := docRef.Set(ctx, toConversationMemoryDoc(mem)); err != nil {
		return nil, goerr.Wrap(err, "failed to put conversation memory",
			goerr.V("conversationID", mem.ConversationID), goerr.V("turn", mem.TurnNumber))
	}

	return mem, nil
}

func (r *conversationMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, conversationID types.ConversationID, embedding []float32, limit int) ([]*interfaces.ScoredConversationMemory, error) {
	vq := r.turnsCollection(userID, conversationID).
		FindNearest("Embedding", firestore.Vector32(embedding), limit,
			firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*interfaces.ScoredConversationMemory, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversation memory vector search results")
		}

		var d conversationMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation memory from vector search")
		}

		results = append(results, &interfaces.ScoredConversationMemory{
			Memory:     fromConversationMemoryDoc(&d),
			Similarity: similarityFromDoc(doc),
		})
	}

	return results, nil
}

func (r *conversationMemoryRepository) ListRecent(ctx context.Context, userID types.UserID, conversationID types.ConversationID, limit int) ([]*model.ConversationMemory, error) {
	iter := r.turnsCollection(userID, conversationID).
		OrderBy("TurnNumber", firestore.Desc).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	rows := make([]*model.ConversationMemory, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversation memories")
		}

		var d conversationMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation memory")
		}

		rows = append(rows, fromConversationMemoryDoc(&d))
	}

	return rows, nil
}

func (r *conversationMemoryRepository) LastTurnNumber(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (int, error) {
	iter := r.turnsCollection(userID, conversationID).
		OrderBy("TurnNumber", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to query last turn number",
			goerr.V("conversationID", conversationID))
	}

	var d conversationMemoryDoc
	if err := doc.DataTo(&d); err != nil {
		return 0, goerr.Wrap(err, "failed to unmarshal conversation memory")
	}

	return d.TurnNumber, nil
}

func (r *conversationMemoryRepository) Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error) {
	iter := r.turnsCollection(userID, conversationID).Documents(ctx)
	defer iter.Stop()

	stats := &model.ConversationStats{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate conversation memories")
		}

		var d conversationMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation memory")
		}

		stats.TotalMessages++
		switch d.Role {
		case types.RoleUser:
			stats.UserMessages++
		case types.RoleAssistant:
			stats.AssistantMessages++
		}
	}

	return stats, nil
}
