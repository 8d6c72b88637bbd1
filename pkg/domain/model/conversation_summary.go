package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// SummaryID is a UUID-based identifier for ConversationSummary
type SummaryID string

// NewSummaryID generates a new UUID v4 SummaryID
func NewSummaryID() SummaryID {
	return SummaryID(uuid.New().String())
}

// String returns the string representation of the summary ID
func (s SummaryID) String() string {
	return string(s)
}

// ConversationSummary holds the rolling synopsis of one conversation.
// There is at most one row per (user, conversation); the first summarization
// pass creates it and later passes replace the summary text, bump the message
// count and refresh the last-activity timestamp.
type ConversationSummary struct {
	ID             SummaryID
	UserID         types.UserID
	ConversationID types.ConversationID
	Title          string
	Summary        string
	KeyTopics      []string
	MessageCount   int
	Embedding      []float32 // embedding of the summary text
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Validate checks the invariants of a conversation summary record
func (s *ConversationSummary) Validate() error {
	if s.UserID == "" {
		return goerr.New("user ID is required")
	}
	if s.ConversationID == "" {
		return goerr.New("conversation ID is required")
	}
	if s.MessageCount < 0 {
		return goerr.New("message count must not be negative", goerr.V("messageCount", s.MessageCount))
	}
	return nil
}
