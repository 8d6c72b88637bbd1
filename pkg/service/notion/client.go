package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/m-mizutani/goerr/v2"
)

// client implements Service interface
type client struct {
	api *notionapi.Client
}

var _ Service = &client{}

// New creates a new Notion service with the provided API token
func New(token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("Notion API token is required")
	}

	return &client{
		api: notionapi.NewClient(
			notionapi.Token(token),
			notionapi.WithRetry(3), // Retry up to 3 times on rate limit (HTTP 429)
		),
	}, nil
}

func (c *client) SearchPages(ctx context.Context, query string, limit int) ([]*Page, error) {
	if limit <= 0 {
		limit = 10
	}

	resp, err := c.api.Search.Do(ctx, &notionapi.SearchRequest{
		Query:    query,
		PageSize: limit,
		Filter: notionapi.SearchFilter{
			Value:    "page",
			Property: "object",
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search pages", goerr.V("query", query))
	}

	pages := make([]*Page, 0, len(resp.Results))
	for _, result := range resp.Results {
		pageObj, ok := result.(*notionapi.Page)
		if !ok {
			continue
		}
		pages = append(pages, &Page{
			ID:           pageObj.ID.String(),
			Title:        pageTitle(pageObj),
			URL:          pageObj.URL,
			LastEditedAt: time.Time(pageObj.LastEditedTime),
		})
		if len(pages) >= limit {
			break
		}
	}

	return pages, nil
}

func (c *client) CreatePage(ctx context.Context, parentPageID, title, content string) (*Page, error) {
	if parentPageID == "" {
		return nil, goerr.New("parent page ID is required")
	}
	if title == "" {
		return nil, goerr.New("page title is required")
	}

	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: []notionapi.RichText{
					{Text: &notionapi.Text{Content: title}},
				},
			},
		},
	}

	if content != "" {
		req.Children = []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: notionapi.ObjectTypeBlock,
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: []notionapi.RichText{
						{Text: &notionapi.Text{Content: content}},
					},
				},
			},
		}
	}

	created, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create page", goerr.V("title", title), goerr.V("parentPageID", parentPageID))
	}

	return &Page{
		ID:           created.ID.String(),
		Title:        title,
		URL:          created.URL,
		LastEditedAt: time.Time(created.LastEditedTime),
	}, nil
}

// pageTitle extracts the title property text from page properties
func pageTitle(page *notionapi.Page) string {
	for _, prop := range page.Properties {
		tp, ok := prop.(*notionapi.TitleProperty)
		if !ok {
			continue
		}
		var sb strings.Builder
		for _, rt := range tp.Title {
			sb.WriteString(rt.PlainText)
		}
		return sb.String()
	}
	return ""
}
