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
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// distanceField is the synthetic field FindNearest writes the cosine distance
// into. Similarity reported to callers is 1 - distance.
const distanceField = "vector_distance"

// userMemoryDoc is the Firestore document representation of model.UserMemory.
// Embedding is stored as firestore.Vector32 for FindNearest vector search.
type userMemoryDoc struct {
	ID             model.MemoryID       `firestore:"ID"`
	UserID         types.UserID         `firestore:"UserID"`
	Kind           types.MemoryKind     `firestore:"Kind"`
	Content        string               `firestore:"Content"`
	ConversationID types.ConversationID `firestore:"ConversationID,omitempty"`
	Importance     float64              `firestore:"Importance"`
	AccessCount    int                  `firestore:"AccessCount"`
	Embedding      firestore.Vector32   `firestore:"Embedding,omitempty"`
	CreatedAt      time.Time            `firestore:"CreatedAt"`
	UpdatedAt      time.Time            `firestore:"UpdatedAt"`
}

func toUserMemoryDoc(m *model.UserMemory) *userMemoryDoc {
	doc := &userMemoryDoc{
		ID:             m.ID,
		UserID:         m.UserID,
		Kind:           m.Kind,
		Content:        m.Content,
		ConversationID: m.ConversationID,
		Importance:     m.Importance,
		AccessCount:    m.AccessCount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if len(m.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(m.Embedding)
	}
	return doc
}

func fromUserMemoryDoc(d *userMemoryDoc) *model.UserMemory {
	m := &model.UserMemory{
		ID:             d.ID,
		UserID:         d.UserID,
		Kind:           d.Kind,
		Content:        d.Content,
		ConversationID: d.ConversationID,
		Importance:     d.Importance,
		AccessCount:    d.AccessCount,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if len(d.Embedding) > 0 {
		m.Embedding = []float32(d.Embedding)
	}
	return m
}

type userMemoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newUserMemoryRepository(client *firestore.Client) *userMemoryRepository {
	return &userMemoryRepository{client: client}
}

// memoriesCollection returns the subcollection path:
// users/{userID}/user_memories
func (r *userMemoryRepository) memoriesCollection(userID types.UserID) *firestore.CollectionRef {
	return usersCollection(r.client, r.collectionPrefix).Doc(string(userID)).
		Collection("user_memories")
}

func (r *userMemoryRepository) Put(ctx context.Context, mem *model.UserMemory) (*model.UserMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user memory")
	}

	if mem.ID == "" {
		mem.ID = model.NewMemoryID()
	}
	if mem.Importance == 0 {
		mem.Importance = model.DefaultImportance
	}
	now := time.Now().UTC()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = mem.CreatedAt

	docRef := r.memoriesCollection(mem.UserID).Doc(string(mem.ID))
	if _, err := docRef.Set(ctx, toUserMemoryDoc(mem)); err != nil {
		return nil, goerr.Wrap(err, "failed to put user memory", goerr.V("memoryID", mem.ID))
	}

	return mem, nil
}

func (r *userMemoryRepository) Get(ctx context.Context, userID types.UserID, memoryID model.MemoryID) (*model.UserMemory, error) {
	docRef := r.memoriesCollection(userID).Doc(string(memoryID))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
		}
		return nil, goerr.Wrap(err, "failed to get user memory", goerr.V("memoryID", memoryID))
	}

	var d userMemoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user memory", goerr.V("memoryID", memoryID))
	}

	return fromUserMemoryDoc(&d), nil
}

func (r *userMemoryRepository) List(ctx context.Context, userID types.UserID) ([]*model.UserMemory, error) {
	iter := r.memoriesCollection(userID).
		OrderBy("CreatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	memories := make([]*model.UserMemory, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate user memories")
		}

		var d userMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user memory")
		}

		memories = append(memories, fromUserMemoryDoc(&d))
	}

	return memories, nil
}

func (r *userMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, kinds []types.MemoryKind, embedding []float32, limit int) ([]*interfaces.ScoredUserMemory, error) {
	query := r.memoriesCollection(userID).Query
	if len(kinds) > 0 {
		kindValues := make([]string, 0, len(kinds))
		for _, k := range kinds {
			kindValues = append(kindValues, k.String())
		}
		query = query.Where("Kind", "in", kindValues)
	}

	vq := query.FindNearest("Embedding", firestore.Vector32(embedding), limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*interfaces.ScoredUserMemory, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate user memory vector search results")
		}

		var d userMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user memory from vector search")
		}

		results = append(results, &interfaces.ScoredUserMemory{
			Memory:     fromUserMemoryDoc(&d),
			Similarity: similarityFromDoc(doc),
		})
	}

	return results, nil
}

func (r *userMemoryRepository) RecordAccess(ctx context.Context, userID types.UserID, memoryID model.MemoryID) error {
	docRef := r.memoriesCollection(userID).Doc(string(memoryID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
			}
			return goerr.Wrap(err, "failed to get user memory", goerr.V("memoryID", memoryID))
		}

		var d userMemoryDoc
		if err := doc.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal user memory", goerr.V("memoryID", memoryID))
		}

		mem := fromUserMemoryDoc(&d)
		mem.ApplyAccess(time.Now().UTC())

		return tx.Update(docRef, []firestore.Update{
			{Path: "AccessCount", Value: mem.AccessCount},
			{Path: "Importance", Value: mem.Importance},
			{Path: "UpdatedAt", Value: mem.UpdatedAt},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to record user memory access", goerr.V("memoryID", memoryID))
	}

	return nil
}

// similarityFromDoc converts the FindNearest distance result field into a
// similarity score. Missing field yields 0.
func similarityFromDoc(doc *firestore.DocumentSnapshot) float64 {
	raw, ok := doc.Data()[distanceField]
	if !ok {
		return 0
	}
	distance, ok := raw.(float64)
	if !ok {
		return 0
	}
	return 1 - distance
}
