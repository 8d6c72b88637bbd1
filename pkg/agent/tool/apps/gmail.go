package apps

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/service/gmail"
)

// NewGmail builds the Gmail tool set
func NewGmail(svc gmail.Service) []gollem.Tool {
	return []gollem.Tool{
		&listRecentEmailsTool{svc: svc},
		&searchEmailsTool{svc: svc},
		&sendEmailTool{svc: svc},
	}
}

func messageToMap(m *gmail.Message) map[string]any {
	return map[string]any{
		"id":      m.ID,
		"from":    m.From,
		"subject": m.Subject,
		"snippet": m.Snippet,
		"date":    m.Date.Format(time.RFC3339),
	}
}

// listRecentEmailsTool retrieves the most recent inbox messages
type listRecentEmailsTool struct {
	svc gmail.Service
}

func (t *listRecentEmailsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "gmail__list_recent",
		Description: "List the user's most recent inbox emails",
		Parameters: map[string]*gollem.Parameter{
			"limit": limitParam("Maximum number of emails to return (default: 10)"),
		},
	}
}

func (t *listRecentEmailsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, "Listing recent emails...")
	messages, err := t.svc.ListRecentMessages(ctx, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent emails")
	}

	items := make([]map[string]any, len(messages))
	for i, m := range messages {
		items[i] = messageToMap(m)
	}
	return map[string]any{"emails": items, "count": len(items)}, nil
}

// searchEmailsTool retrieves messages matching a Gmail search query
type searchEmailsTool struct {
	svc gmail.Service
}

func (t *searchEmailsTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "gmail__search",
		Description: "Search the user's emails with a Gmail query string (e.g. 'is:unread', 'from:alice@example.com')",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "Gmail search query",
				Required:    true,
			},
			"limit": limitParam("Maximum number of emails to return (default: 10)"),
		},
	}
}

func (t *searchEmailsTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, goerr.New("query is required")
	}
	limit, err := extractInt(args, "limit")
	if err != nil {
		return nil, err
	}

	tool.Update(ctx, fmt.Sprintf("Searching emails for %q...", query))
	messages, err := t.svc.SearchMessages(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search emails", goerr.V("query", query))
	}

	items := make([]map[string]any, len(messages))
	for i, m := range messages {
		items[i] = messageToMap(m)
	}
	return map[string]any{"emails": items, "count": len(items)}, nil
}

// sendEmailTool sends a plain-text email from the user's account
type sendEmailTool struct {
	svc gmail.Service
}

func (t *sendEmailTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "gmail__send",
		Description: "Send a plain-text email from the user's account",
		Parameters: map[string]*gollem.Parameter{
			"to": {
				Type:        gollem.TypeString,
				Description: "Recipient email address",
				Required:    true,
			},
			"subject": {
				Type:        gollem.TypeString,
				Description: "Email subject",
				Required:    true,
			},
			"body": {
				Type:        gollem.TypeString,
				Description: "Plain-text email body",
				Required:    true,
			},
		},
	}
}

func (t *sendEmailTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	if to == "" || subject == "" || body == "" {
		return nil, goerr.New("to, subject and body are required")
	}

	tool.Update(ctx, fmt.Sprintf("Sending email to %s...", to))
	id, err := t.svc.SendMessage(ctx, to, subject, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send email", goerr.V("to", to))
	}

	return map[string]any{"message_id": id, "sent": true}, nil
}
