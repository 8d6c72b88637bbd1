package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// client implements Service interface
type client struct {
	api *gmailapi.Service
}

// New creates a Gmail service bound to one user's OAuth access token
func New(ctx context.Context, token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("gmail access token is required")
	}

	api, err := gmailapi.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
	))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gmail client")
	}

	return &client{api: api}, nil
}

func (c *client) ListRecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	return c.listMessages(ctx, "in:inbox", limit)
}

func (c *client) SearchMessages(ctx context.Context, query string, limit int) ([]*Message, error) {
	return c.listMessages(ctx, query, limit)
}

func (c *client) listMessages(ctx context.Context, query string, limit int) ([]*Message, error) {
	resp, err := c.api.Users.Messages.List("me").
		Q(query).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list gmail messages", goerr.V("query", query))
	}

	messages := make([]*Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := c.api.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get gmail message", goerr.V("id", ref.Id))
		}

		messages = append(messages, fromAPIMessage(msg))
	}

	return messages, nil
}

func fromAPIMessage(msg *gmailapi.Message) *Message {
	m := &Message{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}

	if msg.Payload == nil {
		return m
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "From":
			m.From = header.Value
		case "Subject":
			m.Subject = header.Value
		case "Date":
			if t, err := time.Parse(time.RFC1123Z, header.Value); err == nil {
				m.Date = t
			}
		}
	}

	return m
}

func (c *client) SendMessage(ctx context.Context, to, subject, body string) (string, error) {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body)

	sent, err := c.api.Users.Messages.Send("me", &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return "", goerr.Wrap(err, "failed to send gmail message", goerr.V("to", to))
	}

	return sent.Id, nil
}
