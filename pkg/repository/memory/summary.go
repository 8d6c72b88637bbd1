package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type summaryRepository struct {
	mu      sync.RWMutex
	entries map[types.UserID]map[types.ConversationID]*model.ConversationSummary
}

func newSummaryRepository() *summaryRepository {
	return &summaryRepository{
		entries: make(map[types.UserID]map[types.ConversationID]*model.ConversationSummary),
	}
}

func copySummary(s *model.ConversationSummary) *model.ConversationSummary {
	copied := &model.ConversationSummary{
		ID:             s.ID,
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Title:          s.Title,
		Summary:        s.Summary,
		MessageCount:   s.MessageCount,
		StartedAt:      s.StartedAt,
		LastActivityAt: s.LastActivityAt,
	}
	if s.KeyTopics != nil {
		copied.KeyTopics = append([]string{}, s.KeyTopics...)
	}
	if s.Embedding != nil {
		copied.Embedding = make([]float32, len(s.Embedding))
		copy(copied.Embedding, s.Embedding)
	}
	return copied
}

func (r *summaryRepository) Upsert(ctx context.Context, summary *model.ConversationSummary) (*model.ConversationSummary, error) {
	if err := summary.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation summary")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[summary.UserID]; !exists {
		r.entries[summary.UserID] = make(map[types.ConversationID]*model.ConversationSummary)
	}

	now := time.Now().UTC()
	stored := copySummary(summary)

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
	return copySummary(stored), nil
}

func (r *summaryRepository) Get(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "summary not found", goerr.V("conversationID", conversationID))
	}

	summary, exists := bucket[conversationID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "summary not found", goerr.V("conversationID", conversationID))
	}

	return copySummary(summary), nil
}

func (r *summaryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*interfaces.ScoredSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return []*interfaces.ScoredSummary{}, nil
	}

	var candidates []*interfaces.ScoredSummary
	for _, s := range bucket {
		if len(s.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredSummary{
			Summary:    copySummary(s),
			Similarity: cosineSimilarity(embedding, s.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	if limit > len(candidates) {
		limit = len(candidates)
	}

	return candidates[:limit], nil
}
