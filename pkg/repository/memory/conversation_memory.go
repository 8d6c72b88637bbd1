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

// conversationKey is a composite key for conversation memory rows
type conversationKey struct {
	userID         types.UserID
	conversationID types.ConversationID
}

type conversationMemoryRepository struct {
	mu      sync.RWMutex
	entries map[conversationKey][]*model.ConversationMemory
}

func newConversationMemoryRepository() *conversationMemoryRepository {
	return &conversationMemoryRepository{
		entries: make(map[conversationKey][]*model.ConversationMemory),
	}
}

func copyConversationMemory(m *model.ConversationMemory) *model.ConversationMemory {
	copied := &model.ConversationMemory{
		ID:             m.ID,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		Content:        m.Content,
		Role:           m.Role,
		TurnNumber:     m.TurnNumber,
		CreatedAt:      m.CreatedAt,
	}
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return copied
}

func (r *conversationMemoryRepository) Put(ctx context.Context, mem *model.ConversationMemory) (*model.ConversationMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation memory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := conversationKey{userID: mem.UserID, conversationID: mem.ConversationID}

	created := copyConversationMemory(mem)
	if created.ID == "" {
		created.ID = model.NewTurnMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	r.entries[key] = append(r.entries[key], created)
	return copyConversationMemory(created), nil
}

func (r *conversationMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, conversationID types.ConversationID, embedding []float32, limit int) ([]*interfaces.ScoredConversationMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, exists := r.entries[conversationKey{userID: userID, conversationID: conversationID}]
	if !exists {
		return []*interfaces.ScoredConversationMemory{}, nil
	}

	var candidates []*interfaces.ScoredConversationMemory
	for _, m := range rows {
		if len(m.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredConversationMemory{
			Memory:     copyConversationMemory(m),
			Similarity: cosineSimilarity(embedding, m.Embedding),
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

func (r *conversationMemoryRepository) ListRecent(ctx context.Context, userID types.UserID, conversationID types.ConversationID, limit int) ([]*model.ConversationMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, exists := r.entries[conversationKey{userID: userID, conversationID: conversationID}]
	if !exists {
		return []*model.ConversationMemory{}, nil
	}

	result := make([]*model.ConversationMemory, 0, len(rows))
	for _, m := range rows {
		result = append(result, copyConversationMemory(m))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TurnNumber != result[j].TurnNumber {
			return result[i].TurnNumber > result[j].TurnNumber
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit < len(result) {
		result = result[:limit]
	}

	return result, nil
}

func (r *conversationMemoryRepository) LastTurnNumber(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.entries[conversationKey{userID: userID, conversationID: conversationID}]

	last := 0
	for _, m := range rows {
		if m.TurnNumber > last {
			last = m.TurnNumber
		}
	}

	return last, nil
}

func (r *conversationMemoryRepository) Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.entries[conversationKey{userID: userID, conversationID: conversationID}]

	stats := &model.ConversationStats{}
	for _, m := range rows {
		stats.TotalMessages++
		switch m.Role {
		case types.RoleUser:
			stats.UserMessages++
		case types.RoleAssistant:
			stats.AssistantMessages++
		}
	}

	return stats, nil
}
