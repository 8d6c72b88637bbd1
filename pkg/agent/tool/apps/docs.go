package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/service/docs"
)

// maxDocumentChars bounds how much document text is handed back to the model
const maxDocumentChars = 4000

// NewDocs builds the Google Docs tool set
func NewDocs(svc docs.Service) []gollem.Tool {
	return []gollem.Tool{
		&listDocumentsTool{svc: svc},
		&createDocumentTool{svc: svc},
		&readDocumentTool{svc: svc},
	}
}

func documentToMap(d *docs.Document) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"title":       d.Title,
		"url":         d.URL,
		"modified_at": d.ModifiedAt.Format(time.RFC3339),
	}
}

// listDocumentsTool retrieves the user's documents
type listDocumentsTool struct {
	svc docs.Service
}

func (t *listDocumentsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "docs__list",
		Description: "List the user's Google Docs, most recently modified first",
		Parameters: map[string]*gollem.Parameter{
			"limit": limitParam("Maximum number of documents to return (default: 10)"),
		},
	}
}

func (t *listDocumentsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, "Listing documents...")
	documents, err := t.svc.ListDocuments(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}

	items := make([]map[string]any, len(documents))
	for i, d := range documents {
		items[i] = documentToMap(d)
	}
	return map[string]any{"documents": items, "count": len(items)}, nil
}

// createDocumentTool creates a new document
type createDocumentTool struct {
	svc docs.Service
}

func (t *createDocumentTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "docs__create",
		Description: "Create a new Google Doc with an optional initial body",
		Parameters: map[string]*gollem.Parameter{
			"title": {
				Type:        gollem.TypeString,
				Description: "Document title",
				Required:    true,
			},
			"body": {
				Type:        gollem.TypeString,
				Description: "Initial plain-text content of the document",
				Required:    false,
			},
		},
	}
}

func (t *createDocumentTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return nil, goerr.New("title is required")
	}
	body, _ := args["body"].(string)

	tool.Update(ctx, fmt.Sprintf("Creating document %q...", title))
	doc, err := t.svc.CreateDocument(ctx, title, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create document", goerr.V("title", title))
	}

	return documentToMap(doc), nil
}

// readDocumentTool returns the plain text of a document
type readDocumentTool struct {
	svc docs.Service
}

func (t *readDocumentTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "docs__read",
		Description: "Read the plain-text content of a Google Doc by its ID",
		Parameters: map[string]*gollem.Parameter{
			"document_id": {
				Type:        gollem.TypeString,
				Description: "The ID of the document to read",
				Required:    true,
			},
		},
	}
}

func (t *readDocumentTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	documentID, _ := args["document_id"].(string)
	if documentID == "" {
		return nil, goerr.New("document_id is required")
	}

	tool.Update(ctx, fmt.Sprintf("Reading document %s...", documentID))
	content, err := t.svc.ReadDocument(ctx, documentID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read document", goerr.V("documentID", documentID))
	}

	truncated := false
	if len(content) > maxDocumentChars {
		content = content[:maxDocumentChars]
		truncated = true
	}

	return map[string]any{"content": content, "truncated": truncated}, nil
}
