package chromem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

type conversationMemoryDoc struct {
	ID             model.TurnMemoryID   `json:"id"`
	UserID         types.UserID         `json:"user_id"`
	ConversationID types.ConversationID `json:"conversation_id"`
	MessageID      string               `json:"message_id,omitempty"`
	Content        string               `json:"content"`
	Role           types.Role           `json:"role"`
	TurnNumber     int                  `json:"turn_number"`
	CreatedAt      time.Time            `json:"created_at"`
}

func toConversationMemoryDoc(m *model.ConversationMemory) *conversationMemoryDoc {
	return &conversationMemoryDoc{
		ID:             m.ID,
		UserID:         m.UserID,
		ConversationID: m.ConversationID,
		MessageID:      m.MessageID,
		Content:        m.Content,
		Role:           m.Role,
		TurnNumber:     m.TurnNumber,
		CreatedAt:      m.CreatedAt,
	}
}

func fromConversationMemoryDoc(d *conversationMemoryDoc, embedding []float32) *model.ConversationMemory {
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
	if len(embedding) > 0 {
		m.Embedding = make([]float32, len(embedding))
		copy(m.Embedding, embedding)
	}
	return m
}

type conversationKey struct {
	userID         types.UserID
	conversationID types.ConversationID
}

type conversationMemoryRepository struct {
	db      *chromem.DB
	mu      sync.RWMutex
	entries map[conversationKey][]*model.ConversationMemory
}

func newConversationMemoryRepository(db *chromem.DB) *conversationMemoryRepository {
	return &conversationMemoryRepository{
		db:      db,
		entries: make(map[conversationKey][]*model.ConversationMemory),
	}
}

// rehydrate restores the turn index from documents chromem reloaded from disk
func (r *conversationMemoryRepository) rehydrate(results []chromem.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, result := range results {
		var d conversationMemoryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal conversation memory document", goerr.V("documentID", result.ID))
		}
		key := conversationKey{userID: d.UserID, conversationID: d.ConversationID}
		r.entries[key] = append(r.entries[key], fromConversationMemoryDoc(&d, result.Embedding))
	}
	return nil
}

func (r *conversationMemoryRepository) collection(userID types.UserID) (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection("conversation_memory_"+string(userID), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open conversation memory collection", goerr.V("userID", userID))
	}
	return col, nil
}

func copyConversationMemory(m *model.ConversationMemory) *model.ConversationMemory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return &copied
}

func (r *conversationMemoryRepository) Put(ctx context.Context, mem *model.ConversationMemory) (*model.ConversationMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid conversation memory")
	}

	created := copyConversationMemory(mem)
	if created.ID == "" {
		created.ID = model.NewTurnMemoryID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if len(created.Embedding) > 0 {
		col, err := r.collection(created.UserID)
		if err != nil {
			return nil, err
		}

		content, err := json.Marshal(toConversationMemoryDoc(created))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal conversation memory", goerr.V("id", created.ID))
		}

		doc := chromem.Document{
			ID:        string(created.ID),
			Content:   string(content),
			Embedding: created.Embedding,
			Metadata:  map[string]string{"conversation_id": string(created.ConversationID)},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return nil, goerr.Wrap(err, "failed to add conversation memory document", goerr.V("id", created.ID))
		}
	}

	key := conversationKey{userID: created.UserID, conversationID: created.ConversationID}
	r.mu.Lock()
	r.entries[key] = append(r.entries[key], created)
	r.mu.Unlock()

	return copyConversationMemory(created), nil
}

func (r *conversationMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, conversationID types.ConversationID, embedding []float32, limit int) ([]*interfaces.ScoredConversationMemory, error) {
	col, err := r.collection(userID)
	if err != nil {
		return nil, err
	}

	where := map[string]string{"conversation_id": string(conversationID)}
	results, err := queryEmbedding(ctx, col, embedding, limit, where)
	if err != nil {
		return nil, err
	}

	scored := make([]*interfaces.ScoredConversationMemory, 0, len(results))
	for _, result := range results {
		var d conversationMemoryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal conversation memory document", goerr.V("documentID", result.ID))
		}
		scored = append(scored, &interfaces.ScoredConversationMemory{
			Memory:     fromConversationMemoryDoc(&d, result.Embedding),
			Similarity: float64(result.Similarity),
		})
	}

	return scored, nil
}

func (r *conversationMemoryRepository) ListRecent(ctx context.Context, userID types.UserID, conversationID types.ConversationID, limit int) ([]*model.ConversationMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.entries[conversationKey{userID: userID, conversationID: conversationID}]

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

	last := 0
	for _, m := range r.entries[conversationKey{userID: userID, conversationID: conversationID}] {
		if m.TurnNumber > last {
			last = m.TurnNumber
		}
	}

	return last, nil
}

func (r *conversationMemoryRepository) Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.ConversationStats{}
	for _, m := range r.entries[conversationKey{userID: userID, conversationID: conversationID}] {
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
