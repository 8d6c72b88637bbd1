package types

import "fmt"

// MemoryKind classifies a user-level memory entry
type MemoryKind string

const (
	MemoryKindPreference MemoryKind = "preference"
	MemoryKindFact       MemoryKind = "fact"
	MemoryKindContext    MemoryKind = "context"
)

// AllMemoryKinds returns all valid memory kinds
func AllMemoryKinds() []MemoryKind {
	return []MemoryKind{
		MemoryKindPreference,
		MemoryKindFact,
		MemoryKindContext,
	}
}

// IsValid checks if the memory kind is valid
func (k MemoryKind) IsValid() bool {
	switch k {
	case MemoryKindPreference, MemoryKindFact, MemoryKindContext:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory kind
func (k MemoryKind) String() string {
	return string(k)
}

// ParseMemoryKind parses a string into a MemoryKind
func ParseMemoryKind(s string) (MemoryKind, error) {
	kind := MemoryKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid memory kind: %s", s)
	}
	return kind, nil
}
