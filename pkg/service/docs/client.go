package docs

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const docMimeType = "application/vnd.google-apps.document"

type client struct {
	docs  *docs.Service
	drive *drive.Service
}

var _ Service = &client{}

// New creates a Google Docs service client authenticated with the user's
// OAuth access token.
func New(ctx context.Context, token string) (Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	docsSvc, err := docs.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create docs client")
	}

	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create drive client")
	}

	return &client{
		docs:  docsSvc,
		drive: driveSvc,
	}, nil
}

func (c *client) ListDocuments(ctx context.Context, limit int) ([]*Document, error) {
	if limit <= 0 {
		limit = 10
	}

	resp, err := c.drive.Files.List().
		Q("mimeType='" + docMimeType + "' and trashed=false").
		OrderBy("modifiedTime desc").
		PageSize(int64(limit)).
		Fields("files(id,name,modifiedTime,webViewLink)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list documents")
	}

	documents := make([]*Document, 0, len(resp.Files))
	for _, f := range resp.Files {
		doc := &Document{
			ID:    f.Id,
			Title: f.Name,
			URL:   f.WebViewLink,
		}
		if f.ModifiedTime != "" {
			if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
				doc.ModifiedAt = t
			}
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

func (c *client) CreateDocument(ctx context.Context, title, body string) (*Document, error) {
	if title == "" {
		return nil, goerr.New("document title is required")
	}

	created, err := c.docs.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create document", goerr.V("title", title))
	}

	if body != "" {
		req := &docs.BatchUpdateDocumentRequest{
			Requests: []*docs.Request{
				{
					InsertText: &docs.InsertTextRequest{
						Location: &docs.Location{Index: 1},
						Text:     body,
					},
				},
			},
		}
		if _, err := c.docs.Documents.BatchUpdate(created.DocumentId, req).Context(ctx).Do(); err != nil {
			return nil, goerr.Wrap(err, "failed to write document body", goerr.V("documentID", created.DocumentId))
		}
	}

	return &Document{
		ID:    created.DocumentId,
		Title: created.Title,
		URL:   "https://docs.google.com/document/d/" + created.DocumentId,
	}, nil
}

func (c *client) ReadDocument(ctx context.Context, documentID string) (string, error) {
	if documentID == "" {
		return "", goerr.New("document ID is required")
	}

	doc, err := c.docs.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to get document", goerr.V("documentID", documentID))
	}

	var sb strings.Builder
	if doc.Body != nil {
		for _, elem := range doc.Body.Content {
			if elem.Paragraph == nil {
				continue
			}
			for _, pe := range elem.Paragraph.Elements {
				if pe.TextRun != nil {
					sb.WriteString(pe.TextRun.Content)
				}
			}
		}
	}

	return sb.String(), nil
}
