package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// MemoryID is a UUID-based identifier for UserMemory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// String returns the string representation of the memory ID
func (m MemoryID) String() string {
	return string(m)
}

const (
	// DefaultImportance is assigned to memories stored without an explicit score.
	DefaultImportance = 0.5
	// AccessImportanceBoost is added to the importance score on every access.
	AccessImportanceBoost = 0.1
	// MaxImportance caps the importance score.
	MaxImportance = 1.0
)

// UserMemory is a durable fact, preference, or context item about a user that
// persists across conversations. It is created when the system infers
// something worth remembering, and mutated only by access bookkeeping.
type UserMemory struct {
	ID             MemoryID
	UserID         types.UserID
	Kind           types.MemoryKind
	Content        string
	ConversationID types.ConversationID // originating conversation, may be empty
	Importance     float64              // [0,1]
	AccessCount    int
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the invariants of a user memory record
func (m *UserMemory) Validate() error {
	if m.UserID == "" {
		return goerr.New("user ID is required")
	}
	if m.Content == "" {
		return goerr.New("content is required")
	}
	if !m.Kind.IsValid() {
		return goerr.New("invalid memory kind", goerr.V("kind", m.Kind))
	}
	if m.Importance < 0 || m.Importance > MaxImportance {
		return goerr.New("importance out of range", goerr.V("importance", m.Importance))
	}
	if m.AccessCount < 0 {
		return goerr.New("access count must not be negative", goerr.V("accessCount", m.AccessCount))
	}
	return nil
}

// ApplyAccess records one real access event: the access count goes up by one
// and the importance score is nudged upward, capped at MaxImportance.
func (m *UserMemory) ApplyAccess(now time.Time) {
	m.AccessCount++
	m.Importance = min(MaxImportance, m.Importance+AccessImportanceBoost)
	m.UpdatedAt = now
}
