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

// userMemoryDoc is the JSON document stored as chromem content, so that
// vector search results can be rebuilt without a side lookup.
type userMemoryDoc struct {
	ID             model.MemoryID       `json:"id"`
	UserID         types.UserID         `json:"user_id"`
	Kind           types.MemoryKind     `json:"kind"`
	Content        string               `json:"content"`
	ConversationID types.ConversationID `json:"conversation_id,omitempty"`
	Importance     float64              `json:"importance"`
	AccessCount    int                  `json:"access_count"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func toUserMemoryDoc(m *model.UserMemory) *userMemoryDoc {
	return &userMemoryDoc{
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
}

func fromUserMemoryDoc(d *userMemoryDoc, embedding []float32) *model.UserMemory {
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
	if len(embedding) > 0 {
		m.Embedding = make([]float32, len(embedding))
		copy(m.Embedding, embedding)
	}
	return m
}

type userMemoryRepository struct {
	db      *chromem.DB
	mu      sync.RWMutex
	entries map[types.UserID]map[model.MemoryID]*model.UserMemory
}

func newUserMemoryRepository(db *chromem.DB) *userMemoryRepository {
	return &userMemoryRepository{
		db:      db,
		entries: make(map[types.UserID]map[model.MemoryID]*model.UserMemory),
	}
}

// rehydrate restores the memory index from documents chromem reloaded from disk
func (r *userMemoryRepository) rehydrate(results []chromem.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, result := range results {
		var d userMemoryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal user memory document", goerr.V("documentID", result.ID))
		}
		if _, exists := r.entries[d.UserID]; !exists {
			r.entries[d.UserID] = make(map[model.MemoryID]*model.UserMemory)
		}
		r.entries[d.UserID][d.ID] = fromUserMemoryDoc(&d, result.Embedding)
	}
	return nil
}

func (r *userMemoryRepository) collection(userID types.UserID) (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection("user_memory_"+string(userID), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open user memory collection", goerr.V("userID", userID))
	}
	return col, nil
}

func copyUserMemory(m *model.UserMemory) *model.UserMemory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return &copied
}

func (r *userMemoryRepository) addDocument(ctx context.Context, mem *model.UserMemory) error {
	if len(mem.Embedding) == 0 {
		return nil
	}

	col, err := r.collection(mem.UserID)
	if err != nil {
		return err
	}

	content, err := json.Marshal(toUserMemoryDoc(mem))
	if err != nil {
		return goerr.Wrap(err, "failed to marshal user memory", goerr.V("memoryID", mem.ID))
	}

	doc := chromem.Document{
		ID:        string(mem.ID),
		Content:   string(content),
		Embedding: mem.Embedding,
		Metadata:  map[string]string{"kind": mem.Kind.String()},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to add user memory document", goerr.V("memoryID", mem.ID))
	}

	return nil
}

func (r *userMemoryRepository) Put(ctx context.Context, mem *model.UserMemory) (*model.UserMemory, error) {
	if err := mem.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user memory")
	}

	created := copyUserMemory(mem)
	if created.ID == "" {
		created.ID = model.NewMemoryID()
	}
	if created.Importance == 0 {
		created.Importance = model.DefaultImportance
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	created.UpdatedAt = created.CreatedAt

	if err := r.addDocument(ctx, created); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.entries[created.UserID]; !exists {
		r.entries[created.UserID] = make(map[model.MemoryID]*model.UserMemory)
	}
	r.entries[created.UserID][created.ID] = created
	r.mu.Unlock()

	return copyUserMemory(created), nil
}

func (r *userMemoryRepository) Get(ctx context.Context, userID types.UserID, memoryID model.MemoryID) (*model.UserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem, exists := r.entries[userID][memoryID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}

	return copyUserMemory(mem), nil
}

func (r *userMemoryRepository) List(ctx context.Context, userID types.UserID) ([]*model.UserMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.UserMemory, 0, len(r.entries[userID]))
	for _, m := range r.entries[userID] {
		result = append(result, copyUserMemory(m))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *userMemoryRepository) FindByEmbedding(ctx context.Context, userID types.UserID, kinds []types.MemoryKind, embedding []float32, limit int) ([]*interfaces.ScoredUserMemory, error) {
	col, err := r.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem's where clause is a single exact match, so a multi-kind filter
	// over-fetches and filters afterwards.
	var where map[string]string
	queryLimit := limit
	switch len(kinds) {
	case 0:
	case 1:
		where = map[string]string{"kind": kinds[0].String()}
	default:
		queryLimit = limit * len(types.AllMemoryKinds())
	}

	results, err := queryEmbedding(ctx, col, embedding, queryLimit, where)
	if err != nil {
		return nil, err
	}

	kindSet := make(map[types.MemoryKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	scored := make([]*interfaces.ScoredUserMemory, 0, limit)
	for _, result := range results {
		var d userMemoryDoc
		if err := json.Unmarshal([]byte(result.Content), &d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal user memory document", goerr.V("documentID", result.ID))
		}
		if len(kindSet) > 0 && !kindSet[d.Kind] {
			continue
		}
		scored = append(scored, &interfaces.ScoredUserMemory{
			Memory:     fromUserMemoryDoc(&d, result.Embedding),
			Similarity: float64(result.Similarity),
		})
		if len(scored) >= limit {
			break
		}
	}

	return scored, nil
}

func (r *userMemoryRepository) RecordAccess(ctx context.Context, userID types.UserID, memoryID model.MemoryID) error {
	r.mu.Lock()
	mem, exists := r.entries[userID][memoryID]
	if !exists {
		r.mu.Unlock()
		return goerr.Wrap(ErrNotFound, "user memory not found", goerr.V("memoryID", memoryID))
	}
	mem.ApplyAccess(time.Now().UTC())
	updated := copyUserMemory(mem)
	r.mu.Unlock()

	// rewrite the stored document so search results carry current counters
	return r.addDocument(ctx, updated)
}
