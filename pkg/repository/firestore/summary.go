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

// summaryDoc is the Firestore document representation of
// model.ConversationSummary. The document ID is the conversation ID, which
// makes the one-summary-per-conversation invariant structural.
type summaryDoc struct {
	ID             model.SummaryID      `firestore:"ID"`
	UserID         types.UserID         `firestore:"UserID"`
	ConversationID types.ConversationID `firestore:"ConversationID"`
	Title          string               `firestore:"Title,omitempty"`
	Summary        string               `firestore:"Summary"`
	KeyTopics      []string             `firestore:"KeyTopics,omitempty"`
	MessageCount   int                  `firestore:"MessageCount"`
	Embedding      firestore.Vector32   `firestore:"Embedding,omitempty"`
	StartedAt      time.Time            `firestore:"StartedAt"`
	LastActivityAt time.Time            `firestore:"LastActivityAt"`
}

func toSummaryDoc(s *model.ConversationSummary) *summaryDoc {
	doc := &summaryDoc{
		ID:             s.ID,
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Title:          s.Title,
		Summary:        s.Summary,
		KeyTopics:      s.KeyTopics,
		MessageCount:   s.MessageCount,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
	}
	if len(s.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(s.Embedding)
	}
	return doc
}

func fromSummaryDoc(d *summaryDoc) *model.ConversationSummary {
	s := &model.ConversationSummary{
		ID:             d.ID,
		UserID:         d.UserID,
		ConversationID: d.ConversationID,
		Title:          d.Title,
		Summary:        d.Summary,
		KeyTopics:      d.KeyTopics,
		MessageCount:   d.MessageCount,
		StartedAt:      d.StartedAt,
		LastActivityAt: d.LastActivityAt,
	}
	if len(d.Embedding) > 0 {
		s.Embedding = []float32(d.Embedding)
	}
	return s
}

type summaryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newSummaryRepository(client *firestore.Client) *summaryRepository {
	return &summaryRepository{client: client}
}

// summariesCollection returns the subcollection path:
// users/{userID}/summaries
func (r *summaryRepository) summariesCollection(userID types.UserID) *firestore.CollectionRef {
	return usersCollection(r.client, r.collectionPrefix).Doc(string(userID)).
		Collection("summaries")
}

func (r *summaryRepository) Upsert(ctx context.Context, summary *model.ConversationSummary) (*model.ConversationSummary, error) {
	if err := summary.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation summary")
	}

	docRef := r.summariesCollection(summary.UserID).Doc(string(summary.ConversationID))

	now := time.Now().UTC()
	stored := *summary
	if stored.LastActivityAt.IsZero() {
		stored.LastActivityAt = now
	}

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		switch {
		case err == nil:
			var prev summaryDoc
			if err := doc.DataTo(&prev); err != nil {
				return goerr.Wrap(err, "failed to unmarshal conversation summary")
			}
			stored.ID = prev.ID
			stored.StartedAt = prev.StartedAt

		case status.Code(err) == codes.NotFound:
			if stored.ID == "" {
				stored.ID = model.NewSummaryID()
			}
			if stored.StartedAt.IsZero() {
				stored.StartedAt = now
			}

		default:
			return goerr.Wrap(err, "failed to get conversation summary")
		}

		return tx.Set(docRef, toSummaryDoc(&stored))
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert conversation summary",
			goerr.V("conversationID", summary.ConversationID))
	}

	return &stored, nil
}

func (r *summaryRepository) Get(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationSummary, error) {
	docRef := r.summariesCollection(userID).Doc(string(conversationID))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "summary not found", goerr.V("conversationID", conversationID))
		}
		return nil, goerr.Wrap(err, "failed to get summary", goerr.V("conversationID", conversationID))
	}

	var d summaryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal summary", goerr.V("conversationID", conversationID))
	}

	return fromSummaryDoc(&d), nil
}

func (r *summaryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*interfaces.ScoredSummary, error) {
	vq := r.summariesCollection(userID).
		FindNearest("Embedding", firestore.Vector32(embedding), limit,
			firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{DistanceResultField: distanceField})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	results := make([]*interfaces.ScoredSummary, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate summary vector search results")
		}

		var d summaryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal summary from vector search")
		}

		results = append(results, &interfaces.ScoredSummary{
			Summary:    fromSummaryDoc(&d),
			Similarity: similarityFromDoc(doc),
		})
	}

	return results, nil
}
