package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/service/notion"
)

// NewNotion builds the Notion tool set
func NewNotion(svc notion.Service) []gollem.Tool {
	return []gollem.Tool{
		&searchPagesTool{svc: svc},
		&createPageTool{svc: svc},
	}
}

func pageToMap(p *notion.Page) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"title":          p.Title,
		"url":            p.URL,
		"last_edited_at": p.LastEditedAt.Format(time.RFC3339),
	}
}

// searchPagesTool searches pages in the user's workspace
type searchPagesTool struct {
	svc notion.Service
}

func (t *searchPagesTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "notion__search_pages",
		Description: "Search pages in the user's Notion workspace by keyword",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Search keywords",
				Required:    true,
			},
			"limit": limitParam("Maximum number of pages to return (default: 10)"),
		},
	}
}

func (t *searchPagesTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, goerr.New("query is required")
	}
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, fmt.Sprintf("Searching Notion for %q...", query))
	pages, err := t.svc.SearchPages(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search pages", goerr.V("query", query))
	}

	items := make([]map[string]any, len(pages))
	for i, p := range pages {
		items[i] = pageToMap(p)
	}
	return map[string]any{"pages": items, "count": len(items)}, nil
}

// createPageTool creates a page under a parent page
type createPageTool struct {
	svc notion.Service
}

func (t *createPageTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "notion__create_page",
		Description: "Create a new Notion page under a parent page, with an optional paragraph of content",
		Parameters: map[string]*gollem.Parameter{
			"parent_page_id": {
				Type:        gollem.TypeString,
				Description: "The ID of the parent page",
				Required:    true,
			},
			"title": {
				Type:        gollem.TypeString,
				Description: "Page title",
				Required:    true,
			},
			"content": {
				Type:        gollem.TypeString,
				Description: "Initial paragraph content of the page",
				Required:    false,
			},
		},
	}
}

func (t *createPageTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	parentPageID, _ := args["parent_page_id"].(string)
	title, _ := args["title"].(string)
	if parentPageID == "" || title == "" {
		return nil, goerr.New("parent_page_id and title are required")
	}
	content, _ := args["content"].(string)

	tool.Update(ctx, fmt.Sprintf("Creating Notion page %q...", title))
	page, err := t.svc.CreatePage(ctx, parentPageID, title, content)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create page", goerr.V("title", title))
	}

	return pageToMap(page), nil
}
