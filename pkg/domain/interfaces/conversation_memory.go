package interfaces

import (
	"context"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// ScoredConversationMemory is a conversation memory with its similarity to a
// query embedding (1 - cosine distance, higher is better).
type ScoredConversationMemory struct {
	Memory     *model.ConversationMemory
	Similarity float64
}

// ConversationMemoryRepository defines persistence for per-turn conversation
// memory. Rows are append-only; there is no update or delete in normal
// operation.
type ConversationMemoryRepository interface {
	// Put creates a new conversation memory row
	Put(ctx context.Context, mem *model.ConversationMemory) (*model.ConversationMemory, error)

	// FindByEmbedding performs vector similarity search scoped to one
	// conversation. Returns up to limit rows ordered by descending similarity.
	FindByEmbedding(ctx context.Context, userID types.UserID, conversationID types.ConversationID, embedding []float32, limit int) ([]*ScoredConversationMemory, error)

	// ListRecent returns the most recent rows of a conversation, newest first
	ListRecent(ctx context.Context, userID types.UserID, conversationID types.ConversationID, limit int) ([]*model.ConversationMemory, error)

	// LastTurnNumber returns the highest turn number recorded for the
	// conversation, or 0 when the conversation has no rows yet.
	LastTurnNumber(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (int, error)

	// Stats reports per-role message counts for the conversation
	Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error)
}
