package interfaces

import (
	"context"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// ScoredUserMemory is a user memory with its similarity to a query embedding.
// Similarity is 1 - cosine distance, in [0, 1], higher is better.
type ScoredUserMemory struct {
	Memory     *model.UserMemory
	Similarity float64
}

// UserMemoryRepository defines persistence for cross-conversation user memory
type UserMemoryRepository interface {
	// Put creates a new user memory entry
	Put(ctx context.Context, mem *model.UserMemory) (*model.UserMemory, error)

	// Get retrieves a user memory entry by ID
	Get(ctx context.Context, userID types.UserID, memoryID model.MemoryID) (*model.UserMemory, error)

	// List retrieves all user memory entries for a user, newest first
	List(ctx context.Context, userID types.UserID) ([]*model.UserMemory, error)

	// FindByEmbedding performs vector similarity search using cosine distance,
	// optionally filtered by memory kinds (nil or empty means all kinds).
	// Returns up to limit entries ordered by descending similarity.
	FindByEmbedding(ctx context.Context, userID types.UserID, kinds []types.MemoryKind, embedding []float32, limit int) ([]*ScoredUserMemory, error)

	// RecordAccess registers one access event: access count += 1, importance
	// nudged up (capped at 1.0), updated timestamp refreshed. Each call is a
	// real access event; this is deliberately not idempotent.
	RecordAccess(ctx context.Context, userID types.UserID, memoryID model.MemoryID) error
}
