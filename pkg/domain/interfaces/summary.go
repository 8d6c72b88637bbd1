package interfaces

import (
	"context"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// ScoredSummary is a conversation summary with its similarity to a query
// embedding (1 - cosine distance, higher is better).
type ScoredSummary struct {
	Summary    *model.ConversationSummary
	Similarity float64
}

// SummaryRepository defines persistence for conversation summaries.
// There is at most one summary per (user, conversation).
type SummaryRepository interface {
	// Upsert creates the summary on first call and replaces its content on
	// subsequent calls, preserving ID and StartedAt.
	Upsert(ctx context.Context, summary *model.ConversationSummary) (*model.ConversationSummary, error)

	// Get retrieves the summary of one conversation
	Get(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationSummary, error)

	// FindByEmbedding performs vector similarity search over all summaries of
	// a user. Returns up to limit rows ordered by descending similarity.
	FindByEmbedding(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*ScoredSummary, error)
}
