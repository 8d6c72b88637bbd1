package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/service/github"
)

// NewGitHub builds the GitHub tool set
func NewGitHub(svc github.Service) []gollem.Tool {
	return []gollem.Tool{
		&listRepositoriesTool{svc: svc},
		&listIssuesTool{svc: svc},
		&createIssueTool{svc: svc},
	}
}

func issueToMap(i *github.Issue) map[string]any {
	return map[string]any{
		"number":     i.Number,
		"title":      i.Title,
		"author":     i.Author,
		"state":      i.State,
		"url":        i.URL,
		"created_at": i.CreatedAt.Format(time.RFC3339),
	}
}

// listRepositoriesTool retrieves the user's repositories
type listRepositoriesTool struct {
	svc github.Service
}

func (t *listRepositoriesTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "github__list_repositories",
		Description: "List the user's GitHub repositories, most recently updated first",
		Parameters: map[string]*gollem.Parameter{
			"limit": limitParam("Maximum number of repositories to return (default: 10)"),
		},
	}
}

func (t *listRepositoriesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, "Listing repositories...")
	repos, err := t.svc.ListRepositories(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list repositories")
	}

	items := make([]map[string]any, len(repos))
	for i, r := range repos {
		items[i] = map[string]any{
			"name":        r.Name,
			"full_name":   r.FullName,
			"description": r.Description,
			"url":         r.URL,
			"private":     r.IsPrivate,
			"updated_at":  r.UpdatedAt.Format(time.RFC3339),
		}
	}
	return map[string]any{"repositories": items, "count": len(items)}, nil
}

// listIssuesTool retrieves open issues of a repository
type listIssuesTool struct {
	svc github.Service
}

func (t *listIssuesTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "github__list_issues",
		Description: "List open issues of a repository, newest first",
		Parameters: map[string]*gollem.Parameter{
			"owner": {
				Type:        gollem.TypeString,
				Description: "Repository owner (user or organization)",
				Required:    true,
			},
			"repo": {
				Type:        gollem.TypeString,
				Description: "Repository name",
				Required:    true,
			},
			"limit": limitParam("Maximum number of issues to return (default: 10)"),
		},
	}
}

func (t *listIssuesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	if owner == "" || repo == "" {
		return nil, goerr.New("owner and repo are required")
	}
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, fmt.Sprintf("Listing issues of %s/%s...", owner, repo))
	issues, err := t.svc.ListIssues(ctx, owner, repo, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list issues",
			goerr.V("owner", owner), goerr.V("repo", repo))
	}

	items := make([]map[string]any, len(issues))
	for i, issue := range issues {
		items[i] = issueToMap(issue)
	}
	return map[string]any{"issues": items, "count": len(items)}, nil
}

// createIssueTool opens a new issue on a repository
type createIssueTool struct {
	svc github.Service
}

func (t *createIssueTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "github__create_issue",
		Description: "Open a new issue on a repository",
		Parameters: map[string]*gollem.Parameter{
			"owner": {
				Type:        gollem.TypeString,
				Description: "Repository owner (user or organization)",
				Required:    true,
			},
			"repo": {
				Type:        gollem.TypeString,
				Description: "Repository name",
				Required:    true,
			},
			"title": {
				Type:        gollem.TypeString,
				Description: "Issue title",
				Required:    true,
			},
			"body": {
				Type:        gollem.TypeString,
				Description: "Issue body in Markdown",
				Required:    false,
			},
		},
	}
}

func (t *createIssueTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	owner, _ := args["owner"].(string)
	repo, _ := args["repo"].(string)
	title, _ := args["title"].(string)
	if owner == "" || repo == "" || title == "" {
		return nil, goerr.New("owner, repo and title are required")
	}
	body, _ := args["body"].(string)

	tool.Update(ctx, fmt.Sprintf("Creating issue %q on %s/%s...", title, owner, repo))
	issue, err := t.svc.CreateIssue(ctx, owner, repo, title, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create issue",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("title", title))
	}

	return issueToMap(issue), nil
}
