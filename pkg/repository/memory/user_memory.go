package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type userMemoryRepository struct {
	mu      sync.RWMutex
	entries map[types.UserID]map[model.MemoryID]*model.UserMemory
}

func newUserMemoryRepository() *userMemoryRepository {
	return &userMemoryRepository{
		entries: make(map[types.UserID]map[model.MemoryID]*model.UserMemory),
	}
}

func copyUserMemory(m *model.UserMemory) *model.UserMemory {
	copied := &model.UserMemory{
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
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return copied
}

func (r *userMemoryRepository) Put(ctx context.Context, mem *model.UserMemory) (*model.UserMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user memory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[mem.UserID]; !exists {
		r.entries[mem.UserID] = make(map[model.MemoryID]*model.UserMemory)
	}

	created := copyUserMemory(mem)
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.Importance == 0 {
		created.Importance = model.DefaultImportance
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = created.CreatedAt

	r.entries[mem.UserID][created.ID] = created
	return copyUserMemory(created), nil
}

func (r *userMemoryRepository) Get(ctx context.Context, userID types.UserID, memoryID model.MemoryID) (*model.UserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}

	mem, exists := bucket[memoryID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}

	return copyUserMemory(mem), nil
}

func (r *userMemoryRepository) List(ctx context.Context, userID types.UserID) ([]*model.UserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return []*model.UserMemory{}, nil
	}

	result := make([]*model.UserMemory, 0, len(bucket))
	for _, m := range bucket {
		result = append(result, copyUserMemory(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *userMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, kinds []types.MemoryKind, embedding []float32, limit int) ([]*interfaces.ScoredUserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return []*interfaces.ScoredUserMemory{}, nil
	}

	kindSet := make(map[types.MemoryKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	var candidates []*interfaces.ScoredUserMemory
	for _, m := range bucket {
		if len(m.Embedding) == 0 {
			continue
		}
		if len(kindSet) > 0 && !kindSet[m.Kind] {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredUserMemory{
			Memory:     copyUserMemory(m),
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

func (r *userMemoryRepository) RecordAccess(ctx context.Context, userID types.UserID, memoryID model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[userID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}

	mem, exists := bucket[memoryID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}

	mem.ApplyAccess(time.Now().UTC())
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
