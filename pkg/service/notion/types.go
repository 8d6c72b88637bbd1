package notion

import (
	"context"
	"time"
)

// Service provides interface to Notion API
type Service interface {
	// SearchPages searches pages in the workspace by keyword
	SearchPages(ctx context.Context, query string, limit int) ([]*Page, error)

	// CreatePage creates a page under the given parent page with an
	// optional paragraph of content
	CreatePage(ctx context.Context, parentPageID, title, content string) (*Page, error)
}

// Page is a trimmed view of a Notion page
type Page struct {
	ID           string
	Title        string
	URL          string
	LastEditedAt time.Time
}
