package gmail

import (
	"context"
	"time"
)

// Service provides interface to the Gmail API scoped to one user's token
type Service interface {
	// ListRecentMessages retrieves the most recent inbox messages
	ListRecentMessages(ctx context.Context, limit int) ([]*Message, error)

	// SearchMessages retrieves messages matching a Gmail search query
	SearchMessages(ctx context.Context, query string, limit int) ([]*Message, error)

	// SendMessage sends a plain-text email and returns the message ID
	SendMessage(ctx context.Context, to, subject, body string) (string, error)
}

// Message is a trimmed view of a Gmail message
type Message struct {
	ID      string
	From    string
	Subject string
	Snippet string
	Date    time.Time
}
