package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/memory"
	"github.com/aiga-lab/mnemosyne/pkg/router"
)

// ServiceAgent dispatches one tool-backed agent for a resolved service.
// Implemented by agent.Executor; replaced by a stub in tests.
type ServiceAgent interface {
	Invoke(ctx context.Context, userID types.UserID, service types.Service, message, memoryContext string) (*model.StructuredResult, error)
}

// UseCases wires the turn pipeline: routing, context assembly, dispatch and
// recording.
type UseCases struct {
	repo interfaces.Repository
	llm  gollem.LLMClient

	router    *router.Router
	search    *memory.Search
	assembler *memory.Assembler
	recorder  *memory.Recorder
	executor  ServiceAgent

	budgets         memory.Budgets
	summaryInterval int
	agentTimeout    time.Duration
}

type Option func(*UseCases)

// WithRouter replaces the default intent router
func WithRouter(r *router.Router) Option {
	return func(uc *UseCases) {
		uc.router = r
	}
}

// WithBudgets overrides the context assembly character budgets
func WithBudgets(b memory.Budgets) Option {
	return func(uc *UseCases) {
		uc.budgets = b
	}
}

// WithSummaryInterval overrides how often the rolling conversation summary is
// refreshed
func WithSummaryInterval(n int) Option {
	return func(uc *UseCases) {
		uc.summaryInterval = n
	}
}

// WithAgentTimeout overrides the bounded wait for tool-backed agent runs
func WithAgentTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.agentTimeout = d
	}
}

// WithServiceAgent replaces the tool-backed agent executor, mainly for tests
func WithServiceAgent(x ServiceAgent) Option {
	return func(uc *UseCases) {
		uc.executor = x
	}
}

// New creates the use case aggregate over a repository, an LLM client and the
// OAuth token boundary.
func New(repo interfaces.Repository, llm gollem.LLMClient, tokens interfaces.TokenSource, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:            repo,
		llm:             llm,
		budgets:         memory.DefaultBudgets(),
		summaryInterval: memory.DefaultSummaryInterval,
		agentTimeout:    agent.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.router == nil {
		uc.router = router.New()
	}

	embedder := memory.NewEmbedder(llm)
	uc.search = memory.NewSearch(repo)
	uc.assembler = memory.NewAssembler(uc.search, embedder, uc.budgets)
	uc.recorder = memory.NewRecorder(repo, embedder, llm,
		memory.WithSummaryInterval(uc.summaryInterval))

	if uc.executor == nil {
		uc.executor = agent.New(llm, tokens, agent.WithTimeout(uc.agentTimeout))
	}

	return uc
}
