package agent

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent/tool"
	"github.com/aiga-lab/mnemosyne/pkg/agent/tool/apps"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/service/calendar"
	"github.com/aiga-lab/mnemosyne/pkg/service/docs"
	"github.com/aiga-lab/mnemosyne/pkg/service/github"
	"github.com/aiga-lab/mnemosyne/pkg/service/gmail"
	"github.com/aiga-lab/mnemosyne/pkg/service/notion"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
)

//go:embed prompt/*.md
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompt/*.md"))

// DefaultTimeout bounds a single tool-backed agent run. The turn degrades to
// a timeout answer instead of hanging.
const DefaultTimeout = 60 * time.Second

// ToolFactory builds the tool set for a resolved service using the user's
// access token
type ToolFactory func(ctx context.Context, service types.Service, token string) ([]gollem.Tool, error)

// Executor dispatches one tool-backed agent per turn. Every failure mode is
// converted to a user-safe StructuredResult; the returned error only
// classifies the failure for logging and turn-status mapping.
type Executor struct {
	llm     gollem.LLMClient
	tokens  interfaces.TokenSource
	timeout time.Duration
	factory ToolFactory
}

// Option configures an Executor
type Option func(*Executor)

// WithTimeout overrides the bounded wait for the agent run
func WithTimeout(d time.Duration) Option {
	return func(x *Executor) {
		x.timeout = d
	}
}

// WithToolFactory replaces the tool set construction, mainly for tests
func WithToolFactory(f ToolFactory) Option {
	return func(x *Executor) {
		x.factory = f
	}
}

// New creates an Executor
func New(llm gollem.LLMClient, tokens interfaces.TokenSource, opts ...Option) *Executor {
	x := &Executor{
		llm:     llm,
		tokens:  tokens,
		timeout: DefaultTimeout,
		factory: defaultToolFactory,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func defaultToolFactory(ctx context.Context, service types.Service, token string) ([]gollem.Tool, error) {
	switch service {
	case types.ServiceGmail:
		svc, err := gmail.New(ctx, token)
		if err != nil {
			return nil, err
		}
		return apps.NewGmail(svc), nil

	case types.ServiceCalendar:
		svc, err := calendar.New(ctx, token)
		if err != nil {
			return nil, err
		}
		return apps.NewCalendar(svc), nil

	case types.ServiceDocs:
		svc, err := docs.New(ctx, token)
		if err != nil {
			return nil, err
		}
		return apps.NewDocs(svc), nil

	case types.ServiceNotion:
		svc, err := notion.New(token)
		if err != nil {
			return nil, err
		}
		return apps.NewNotion(svc), nil

	case types.ServiceGitHub:
		svc, err := github.New(ctx, token)
		if err != nil {
			return nil, err
		}
		return apps.NewGitHub(svc), nil

	default:
		return nil, goerr.New("no tool set for service", goerr.V("service", service))
	}
}

// Invoke runs the single tool-backed agent for the resolved service with the
// user's message and the assembled memory context. The returned result is
// always non-nil and safe to show to the user; the error, when non-nil,
// classifies the failure (ErrToolTimeout, ErrToolExecution, or
// interfaces.ErrNotConnected via errors.Is).
func (x *Executor) Invoke(ctx context.Context, userID types.UserID, service types.Service, message, memoryContext string) (*model.StructuredResult, error) {
	logger := logging.From(ctx)

	token, err := x.tokens.Token(ctx, userID, service)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotConnected) {
			return notConnectedResult(service), goerr.Wrap(err, "service not connected",
				goerr.V("service", service), goerr.V("userID", userID))
		}
		return executionErrorResult(service), goerr.Wrap(errors.Join(ErrToolExecution, err),
			"failed to obtain token", goerr.V("service", service))
	}

	tools, err := x.factory(ctx, service, token)
	if err != nil {
		return executionErrorResult(service), goerr.Wrap(errors.Join(ErrToolExecution, err),
			"failed to build tool set", goerr.V("service", service))
	}

	systemPrompt, err := buildSystemPrompt(service, memoryContext)
	if err != nil {
		return executionErrorResult(service), goerr.Wrap(errors.Join(ErrToolExecution, err),
			"failed to build system prompt", goerr.V("service", service))
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	trace := &toolTrace{}
	ctx = tool.WithUpdate(ctx, trace.add)

	runner := gollem.New(x.llm,
		gollem.WithSystemPrompt(systemPrompt),
		gollem.WithTools(tools...),
		gollem.WithToolMiddleware(
			func(next gollem.ToolHandler) gollem.ToolHandler {
				return func(ctx context.Context, req *gollem.ToolExecRequest) (*gollem.ToolExecResponse, error) {
					logger.Debug("dispatching tool", "tool", req.Tool.Name, "service", service.String())
					resp, err := next(ctx, req)
					if resp != nil && resp.Error != nil {
						logger.Warn("tool returned error", "tool", req.Tool.Name, "error", resp.Error.Error())
					}
					return resp, err
				}
			},
		),
	)

	resp, err := runner.Execute(ctx, gollem.Text(message))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return timeoutResult(service), goerr.Wrap(errors.Join(ErrToolTimeout, err),
				"agent run timed out", goerr.V("service", service), goerr.V("timeout", x.timeout))
		}
		return executionErrorResult(service), goerr.Wrap(errors.Join(ErrToolExecution, err),
			"agent run failed", goerr.V("service", service))
	}

	result := parseResult(strings.Join(resp.Texts, "\n"))
	if result.ActionTaken == "" {
		result.ActionTaken = trace.last()
	}
	result.Normalize()
	return result, nil
}

// toolTrace collects progress messages reported by tools during a run
type toolTrace struct {
	mu    sync.Mutex
	lines []string
}

func (t *toolTrace) add(_ context.Context, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, message)
}

func (t *toolTrace) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return ""
	}
	return strings.TrimSuffix(t.lines[len(t.lines)-1], "...")
}

type promptData struct {
	Context string
}

func buildSystemPrompt(service types.Service, memoryContext string) (string, error) {
	tmpl := promptTemplates.Lookup(service.String() + ".md")
	if tmpl == nil {
		return "", goerr.New("no prompt template for service", goerr.V("service", service))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{Context: memoryContext}); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt template", goerr.V("service", service))
	}
	return buf.String(), nil
}

// parseResult extracts the structured response from the agent's final text.
// The prompt asks for a bare JSON object but models sometimes wrap it in code
// fences or prose, so fall back to treating the whole text as the answer.
func parseResult(text string) *model.StructuredResult {
	trimmed := strings.TrimSpace(text)

	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			var result model.StructuredResult
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &result); err == nil && result.Answer != "" {
				return &result
			}
		}
	}

	return &model.StructuredResult{
		Answer: trimmed,
		Status: types.ResultStatusSuccess,
	}
}

func notConnectedResult(service types.Service) *model.StructuredResult {
	return &model.StructuredResult{
		Answer:   fmt.Sprintf("Your %s account isn't connected yet. Connect it first, then ask me again.", service),
		Status:   types.ResultStatusError,
		NextStep: fmt.Sprintf("Connect %s", service),
	}
}

func timeoutResult(service types.Service) *model.StructuredResult {
	return &model.StructuredResult{
		Answer:   fmt.Sprintf("The %s request took too long and was stopped. Please try again.", service),
		Status:   types.ResultStatusError,
		NextStep: "Try again",
	}
}

func executionErrorResult(service types.Service) *model.StructuredResult {
	return &model.StructuredResult{
		Answer: fmt.Sprintf("Something went wrong while working with %s. Please try again later.", service),
		Status: types.ResultStatusError,
	}
}
