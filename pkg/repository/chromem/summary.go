package chromem

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

type summaryDoc struct {
	ID             model.SummaryID      `json:"id"`
	UserID         types.UserID         `json:"user_id"`
	ConversationID types.ConversationID `json:"conversation_id"`
	Title          string               `json:"title,omitempty"`
	Summary        string               `json:"summary"`
	KeyTopics      []string             `json:"key_topics,omitempty"`
	MessageCount   int                  `json:"message_count"`
	StartedAt      time.Time            `json:"started_at"`
	LastActivityAt time.Time            `json:"last_activity_at"`
}

func toSummaryDoc(s *model.ConversationSummary) *summaryDoc {
	return &summaryDoc{
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
}

func fromSummaryDoc(d *summaryDoc, embedding []float32) *model.ConversationSummary {
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
	if len(embedding) > 0 {
		s.Embedding = make([]float32, len(embedding))
		copy(s.Embedding, embedding)
	}
	return s
}

type summaryRepository struct {
	db      *chromem.DB
	mu      sync.RWMutex
	entries map[types.UserID]map[types.ConversationID]*model.ConversationSummary
}

func newSummaryRepository(db *chromem.DB) *summaryRepository {
	return &summaryRepository{
		db:      db,
		entries: make(map[types.UserID]map[types.ConversationID]*model.ConversationSummary),
	}
}

// rehydrate restores the summary index from documents chromem reloaded from disk
func (r *summaryRepository) rehydrate(results []chromem.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, result := range results {
		var d summaryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal summary document", goerr.V("documentID", result.ID))
		}
		if _, exists := r.entries[d.UserID]; !exists {
			r.entries[d.UserID] = make(map[types.ConversationID]*model.ConversationSummary)
		}
		r.entries[d.UserID][d.ConversationID] = fromSummaryDoc(&d, result.Embedding)
	}
	return nil
}

func (r *summaryRepository) collection(userID types.UserID) (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection("summary_"+string(userID), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open summary collection", goerr.V("userID", userID))
	}
	return col, nil
}

func copySummary(s *model.ConversationSummary) *model.ConversationSummary {
	copied := *s
	if s.KeyTopics != nil {
		copied.KeyTopics = append([]string{}, s.KeyTopics...)
	}
	if s.Embedding != nil {
		copied.Embedding = make([]float32, len(s.Embedding))
		copy(copied.Embedding, s.Embedding)
	}
	return &copied
}

func (r *summaryRepository) Upsert(ctx context.Context, summary *model.ConversationSummary) (*model.ConversationSummary, error) {
	if err := summary.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation summary")
	}

	now := time.Now().UTC()
	stored := copySummary(summary)

	r.mu.Lock()
	if _, exists := r.entries[summary.UserID]; !exists {
		r.entries[summary.UserID] = make(map[types.ConversationID]*model.ConversationSummary)
	}
	if prev, exists := r.entries[summary.UserID][summary.ConversationID]; exists {
		stored.ID = prev.ID
		stored.StartedAt = prev.StartedAt
	} else {
		if stored.ID == "" {
			stored.ID = model.NewSummaryID()
		}
		if stored.StartedAt.IsZero() {
			stored.StartedAt = now
		}
	}
	if stored.LastActivityAt.IsZero() {
		stored.LastActivityAt = now
	}
	r.entries[summary.UserID][summary.ConversationID] = stored
	r.mu.Unlock()

	if len(stored.Embedding) > 0 {
		col, err := r.collection(stored.UserID)
		if err != nil {
			return nil, err
		}

		content, err := json.Marshal(toSummaryDoc(stored))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal summary", goerr.V("conversationID", stored.ConversationID))
		}

		// document ID is the conversation ID, so re-summarization overwrites
		doc := chromem.Document{
			ID:        string(stored.ConversationID),
			Content:   string(content),
			Embedding: stored.Embedding,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, goerr.Wrap(err, "failed to add summary document", goerr.V("conversationID", stored.ConversationID))
		}
	}

	return copySummary(stored), nil
}

func (r *summaryRepository) Get(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary, exists := r.entries[userID][conversationID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "summary not found", goerr.V("conversationID", conversationID))
	}

	return copySummary(summary), nil
}

func (r *summaryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*interfaces.ScoredSummary, error) {
	col, err := r.collection(userID)
	if err != nil {
		return nil, err
	}

	results, err := queryEmbedding(ctx, col, embedding, limit, nil)
	if err != nil {
		return nil, err
	}

	scored := make([]*interfaces.ScoredSummary, 0, len(results))
	for _, result := range results {
		var d summaryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal summary document", goerr.V("documentID", result.ID))
		}
		scored = append(scored, &interfaces.ScoredSummary{
			Summary:    fromSummaryDoc(&d, result.Embedding),
			Similarity: float64(result.Similarity),
		})
	}

	return scored, nil
}
