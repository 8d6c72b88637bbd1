package config

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// Integrations holds per-service access tokens for single-user deployments.
// Services without a token report as not connected; the assistant tells the
// user to connect them instead of failing the turn.
type Integrations struct {
	gmailToken    string
	calendarToken string
	docsToken     string
	notionToken   string
	githubToken   string
}

// Flags returns CLI flags for integration tokens
func (i *Integrations) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gmail-token",
			Usage:       "OAuth access token for Gmail",
			Sources:     cli.EnvVars("MNEMOSYNE_GMAIL_TOKEN"),
			Destination: &i.gmailToken,
		},
		&cli.StringFlag{
			Name:        "calendar-token",
			Usage:       "OAuth access token for Google Calendar",
			Sources:     cli.EnvVars("MNEMOSYNE_CALENDAR_TOKEN"),
			Destination: &i.calendarToken,
		},
		&cli.StringFlag{
			Name:        "docs-token",
			Usage:       "OAuth access token for Google Docs",
			Sources:     cli.EnvVars("MNEMOSYNE_DOCS_TOKEN"),
			Destination: &i.docsToken,
		},
		&cli.StringFlag{
			Name:        "notion-token",
			Usage:       "Notion integration token",
			Sources:     cli.EnvVars("MNEMOSYNE_NOTION_TOKEN"),
			Destination: &i.notionToken,
		},
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub access token",
			Sources:     cli.EnvVars("MNEMOSYNE_GITHUB_TOKEN"),
			Destination: &i.githubToken,
		},
	}
}

// LogAttrs reports which services are connected. Token values are never logged.
func (i *Integrations) LogAttrs() []slog.Attr {
	tokens := i.tokens()
	attrs := make([]slog.Attr, 0, len(tokens))
	for _, svc := range types.AllServices() {
		_, ok := tokens[svc]
		attrs = append(attrs, slog.Bool(svc.String(), ok))
	}
	return attrs
}

func (i *Integrations) tokens() map[types.Service]string {
	tokens := make(map[types.Service]string)
	if i.gmailToken != "" {
		tokens[types.ServiceGmail] = i.gmailToken
	}
	if i.calendarToken != "" {
		tokens[types.ServiceCalendar] = i.calendarToken
	}
	if i.docsToken != "" {
		tokens[types.ServiceDocs] = i.docsToken
	}
	if i.notionToken != "" {
		tokens[types.ServiceNotion] = i.notionToken
	}
	if i.githubToken != "" {
		tokens[types.ServiceGitHub] = i.githubToken
	}
	return tokens
}

// Configure returns a TokenSource backed by the configured static tokens
func (i *Integrations) Configure() interfaces.TokenSource {
	return &staticTokenSource{tokens: i.tokens()}
}

// staticTokenSource serves the same tokens to every user. Multi-user
// deployments plug their own TokenSource into the use case layer instead.
type staticTokenSource struct {
	tokens map[types.Service]string
}

func (s *staticTokenSource) Token(ctx context.Context, userID types.UserID, service types.Service) (string, error) {
	token, ok := s.tokens[service]
	if !ok {
		return "", interfaces.ErrNotConnected
	}
	return token, nil
}
