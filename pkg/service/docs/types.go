package docs

import (
	"context"
	"time"
)

// Service provides interface to Google Docs scoped to one user's token.
// Listing goes through the Drive API; content through the Docs API.
type Service interface {
	// ListDocuments retrieves the user's documents, most recently modified
	// first
	ListDocuments(ctx context.Context, limit int) ([]*Document, error)

	// CreateDocument creates a document with an optional initial body
	CreateDocument(ctx context.Context, title, body string) (*Document, error)

	// ReadDocument returns the plain text content of a document
	ReadDocument(ctx context.Context, documentID string) (string, error)
}

// Document is a trimmed view of a Google Doc
type Document struct {
	ID         string
	Title      string
	URL        string
	ModifiedAt time.Time
}
