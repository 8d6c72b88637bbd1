package types

// UserID identifies the owner of all memory records. Every query and every
// write is scoped by it; there is no cross-user visibility.
type UserID string

// String returns the string representation of the user ID
func (u UserID) String() string {
	return string(u)
}

// ConversationID identifies one conversation of a user
type ConversationID string

// String returns the string representation of the conversation ID
func (c ConversationID) String() string {
	return string(c)
}
