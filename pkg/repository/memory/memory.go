package memory

import (
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is an in-memory implementation of interfaces.Repository.
// All data is lost on process exit. Intended for tests and local runs.
type Memory struct {
	userMemory   *userMemoryRepository
	conversation *conversationMemoryRepository
	summary      *summaryRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		userMemory:   newUserMemoryRepository(),
		conversation: newConversationMemoryRepository(),
		summary:      newSummaryRepository(),
	}
}

func (m *Memory) UserMemory() interfaces.UserMemoryRepository {
	return m.userMemory
}

func (m *Memory) ConversationMemory() interfaces.ConversationMemoryRepository {
	return m.conversation
}

func (m *Memory) Summary() interfaces.SummaryRepository {
	return m.summary
}

func (m *Memory) Close() error {
	return nil
}
