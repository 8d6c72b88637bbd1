package memory

import (
	"context"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// Result caps per tier. Caller limits above these are clamped, never an error.
const (
	MaxUserMemoryResults   = 50
	MaxConversationResults = 20
	MaxSummaryResults      = 10
)

// Default similarity thresholds per tier. Summaries match coarser text so
// their threshold is looser.
const (
	DefaultUserMemoryThreshold   = 0.7
	DefaultConversationThreshold = 0.7
	DefaultSummaryThreshold      = 0.6
)

// Search performs threshold-filtered similarity search over the three memory
// tiers. Repositories return raw scored rows; this layer owns the caps and
// the strictly-greater-than threshold contract.
type Search struct {
	repo             interfaces.Repository
	userThreshold    float64
	convThreshold    float64
	summaryThreshold float64
}

type SearchOption func(*Search)

func WithUserMemoryThreshold(v float64) SearchOption {
	return func(s *Search) { s.userThreshold = v }
}

func WithConversationThreshold(v float64) SearchOption {
	return func(s *Search) { s.convThreshold = v }
}

func WithSummaryThreshold(v float64) SearchOption {
	return func(s *Search) { s.summaryThreshold = v }
}

func NewSearch(repo interfaces.Repository, opts ...SearchOption) *Search {
	s := &Search{
		repo:             repo,
		userThreshold:    DefaultUserMemoryThreshold,
		convThreshold:    DefaultConversationThreshold,
		summaryThreshold: DefaultSummaryThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clampLimit(limit, maxResults int) int {
	if limit <= 0 || limit > maxResults {
		return maxResults
	}
	return limit
}

// UserMemories searches cross-conversation user memory, optionally filtered
// by kind. An empty result is normal, not an error.
func (s *Search) UserMemories(ctx context.Context, userID types.UserID, kinds []types.MemoryKind, embedding []float32, limit int) ([]*interfaces.ScoredUserMemory, error) {
	if err := validateEmbedding(embedding); err != nil {
		return nil, err
	}

	rows, err := s.repo.UserMemory().FindByEmbedding(ctx, userID, kinds, embedding, clampLimit(limit, MaxUserMemoryResults))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search user memories", goerr.V("userID", userID))
	}

	result := make([]*interfaces.ScoredUserMemory, 0, len(rows))
	for _, row := range rows {
		if row.Similarity > s.userThreshold {
			result = append(result, row)
		}
	}

	return result, nil
}

// ConversationMemories searches turns within one conversation
func (s *Search) ConversationMemories(ctx context.Context, userID types.UserID, conversationID types.ConversationID, embedding []float32, limit int) ([]*interfaces.ScoredConversationMemory, error) {
	if err := validateEmbedding(embedding); err != nil {
		return nil, err
	}

	rows, err := s.repo.ConversationMemory().FindByEmbedding(ctx, userID, conversationID, embedding, clampLimit(limit, MaxConversationResults))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search conversation memories",
			goerr.V("userID", userID), goerr.V("conversationID", conversationID))
	}

	result := make([]*interfaces.ScoredConversationMemory, 0, len(rows))
	for _, row := range rows {
		if row.Similarity > s.convThreshold {
			result = append(result, row)
		}
	}

	return result, nil
}

// Summaries searches summaries of the user's other conversations
func (s *Search) Summaries(ctx context.Context, userID types.UserID, embedding []float32, limit int) ([]*interfaces.ScoredSummary, error) {
	if err := validateEmbedding(embedding); err != nil {
		return nil, err
	}

	rows, err := s.repo.Summary().FindByEmbedding(ctx, userID, embedding, clampLimit(limit, MaxSummaryResults))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search conversation summaries", goerr.V("userID", userID))
	}

	result := make([]*interfaces.ScoredSummary, 0, len(rows))
	for _, row := range rows {
		if row.Similarity > s.summaryThreshold {
			result = append(result, row)
		}
	}

	return result, nil
}

// RecordAccess registers one access event for a surfaced user memory
func (s *Search) RecordAccess(ctx context.Context, userID types.UserID, memoryID model.MemoryID) error {
	if err := s.repo.UserMemory().RecordAccess(ctx, userID, memoryID); err != nil {
		return goerr.Wrap(err, "failed to record memory access",
			goerr.V("userID", userID), goerr.V("memoryID", memoryID))
	}
	return nil
}
