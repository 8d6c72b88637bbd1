package github

import (
	"context"
	"time"
)

// Service provides interface to GitHub GraphQL API scoped to one user's
// token
type Service interface {
	// ListRepositories retrieves the authenticated user's repositories,
	// most recently updated first
	ListRepositories(ctx context.Context, limit int) ([]*Repository, error)

	// ListIssues retrieves open issues of a repository, newest first
	ListIssues(ctx context.Context, owner, repo string, limit int) ([]*Issue, error)

	// CreateIssue opens a new issue on a repository
	CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error)
}

// Repository is a trimmed view of a GitHub repository
type Repository struct {
	Name        string
	FullName    string
	Description string
	URL         string
	IsPrivate   bool
	UpdatedAt   time.Time
}

// Issue is a trimmed view of a GitHub issue
type Issue struct {
	Number    int
	Title     string
	Body      string
	Author    string
	State     string
	URL       string
	CreatedAt time.Time
}
