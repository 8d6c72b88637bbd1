package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// TurnMemoryID is a UUID-based identifier for ConversationMemory
type TurnMemoryID string

// NewTurnMemoryID generates a new TurnMemoryID. UUID v7 is used so that IDs
// sort in creation order within a conversation.
func NewTurnMemoryID() TurnMemoryID {
	return TurnMemoryID(uuid.Must(uuid.NewV7()).String())
}

// String returns the string representation of the turn memory ID
func (t TurnMemoryID) String() string {
	return string(t)
}

// ConversationMemory is a single turn's content within one conversation.
// Rows are written once by the turn recorder and never mutated; archiving a
// conversation supersedes them logically, it does not remove them.
type ConversationMemory struct {
	ID             TurnMemoryID
	UserID         types.UserID
	ConversationID types.ConversationID
	MessageID      string // optional link to an upstream message record
	Content        string
	Role           types.Role
	TurnNumber     int // strictly increasing per conversation
	Embedding      []float32
	CreatedAt      time.Time
}

// Validate checks the invariants of a conversation memory record
func (m *ConversationMemory) Validate() error {
	if m.UserID == "" {
		return goerr.New("user ID is required")
	}
	if m.ConversationID == "" {
		return goerr.New("conversation ID is required")
	}
	if m.Content == "" {
		return goerr.New("content is required")
	}
	if !m.Role.IsValid() {
		return goerr.New("invalid role", goerr.V("role", m.Role))
	}
	if m.TurnNumber < 1 {
		return goerr.New("turn number must be positive", goerr.V("turnNumber", m.TurnNumber))
	}
	return nil
}
