package interfaces

// Repository defines the interface for memory persistence across the three
// tiers. Implementations: memory (development/tests), firestore (production),
// chromem (embedded local persistence).
type Repository interface {
	UserMemory() UserMemoryRepository
	ConversationMemory() ConversationMemoryRepository
	Summary() SummaryRepository

	Close() error
}
