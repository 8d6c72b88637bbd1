package github

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

type client struct {
	gql *githubv4.Client
}

var _ Service = &client{}

// New creates a new GitHub Service authenticated with the user's OAuth
// access token.
func New(ctx context.Context, token string) (Service, error) {
	if token == "" {
		return nil, goerr.New("GitHub access token is required")
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	return &client{gql: githubv4.NewClient(httpClient)}, nil
}

func (c *client) ListRepositories(ctx context.Context, limit int) ([]*Repository, error) {
	if limit <= 0 {
		limit = 10
	}

	var q viewerRepositoriesQuery
	variables := map[string]interface{}{
		"first": githubv4.Int(limit),
	}

	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return nil, goerr.Wrap(err, "failed to list repositories")
	}

	repos := make([]*Repository, 0, len(q.Viewer.Repositories.Nodes))
	for _, node := range q.Viewer.Repositories.Nodes {
		repos = append(repos, &Repository{
			Name:        string(node.Name),
			FullName:    string(node.NameWithOwner),
			Description: string(node.Description),
			URL:         string(node.URL),
			IsPrivate:   bool(node.IsPrivate),
			UpdatedAt:   node.UpdatedAt.Time,
		})
	}

	return repos, nil
}

func (c *client) ListIssues(ctx context.Context, owner, repo string, limit int) ([]*Issue, error) {
	if owner == "" || repo == "" {
		return nil, goerr.New("repository owner and name are required")
	}
	if limit <= 0 {
		limit = 10
	}

	var q repositoryIssuesQuery
	variables := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"first": githubv4.Int(limit),
	}

	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return nil, goerr.Wrap(err, "failed to list issues",
			goerr.V("owner", owner), goerr.V("repo", repo))
	}

	issues := make([]*Issue, 0, len(q.Repository.Issues.Nodes))
	for _, node := range q.Repository.Issues.Nodes {
		issues = append(issues, convertIssue(node))
	}

	return issues, nil
}

func (c *client) CreateIssue(ctx context.Context, owner, repo, title, body string) (*Issue, error) {
	if owner == "" || repo == "" {
		return nil, goerr.New("repository owner and name are required")
	}
	if title == "" {
		return nil, goerr.New("issue title is required")
	}

	// CreateIssue mutation takes a repository node ID, not owner/name
	var idQuery repositoryIDQuery
	variables := map[string]interface{}{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
	}
	if err := c.gql.Query(ctx, &idQuery, variables); err != nil {
		return nil, goerr.Wrap(err, "failed to resolve repository",
			goerr.V("owner", owner), goerr.V("repo", repo))
	}

	input := githubv4.CreateIssueInput{
		RepositoryID: idQuery.Repository.ID,
		Title:        githubv4.String(title),
	}
	if body != "" {
		b := githubv4.String(body)
		input.Body = &b
	}

	var m createIssueMutation
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return nil, goerr.Wrap(err, "failed to create issue",
			goerr.V("owner", owner), goerr.V("repo", repo), goerr.V("title", title))
	}

	return convertIssue(m.CreateIssue.Issue), nil
}

// GraphQL query types

type viewerRepositoriesQuery struct {
	Viewer struct {
		Repositories struct {
			Nodes []struct {
				Name          githubv4.String
				NameWithOwner githubv4.String
				Description   githubv4.String
				URL           githubv4.String
				IsPrivate     githubv4.Boolean
				UpdatedAt     githubv4.DateTime
			}
		} `graphql:"repositories(first: $first, orderBy: {field: UPDATED_AT, direction: DESC}, affiliations: [OWNER, COLLABORATOR])"`
	}
}

type repositoryIssuesQuery struct {
	Repository struct {
		Issues struct {
			Nodes []issueFragment
		} `graphql:"issues(first: $first, states: [OPEN], orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type repositoryIDQuery struct {
	Repository struct {
		ID githubv4.ID
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type createIssueMutation struct {
	CreateIssue struct {
		Issue issueFragment
	} `graphql:"createIssue(input: $input)"`
}

type issueFragment struct {
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	State     githubv4.String
	URL       githubv4.String
	CreatedAt githubv4.DateTime
	Author    struct {
		Login githubv4.String
	}
}

func convertIssue(issue issueFragment) *Issue {
	return &Issue{
		Number:    int(issue.Number),
		Title:     string(issue.Title),
		Body:      string(issue.Body),
		Author:    string(issue.Author.Login),
		State:     string(issue.State),
		URL:       string(issue.URL),
		CreatedAt: issue.CreatedAt.Time,
	}
}
