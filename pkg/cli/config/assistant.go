package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/aiga-lab/mnemosyne/pkg/agent"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/memory"
	"github.com/aiga-lab/mnemosyne/pkg/router"
	"github.com/aiga-lab/mnemosyne/pkg/usecase"
)

// Assistant holds tuning flags for the turn pipeline: context budgets,
// summary cadence, agent timeout, and an optional TOML file that overrides
// the budgets and the built-in routing vocabularies.
type Assistant struct {
	configPath string

	conversationBudget int
	userMemoryBudget   int
	summaryBudget      int
	totalBudget        int

	summaryInterval int
	agentTimeout    time.Duration
}

// AppConfig is the TOML shape of the optional assistant config file. It
// overrides the flag-level budgets and the built-in routing vocabularies.
type AppConfig struct {
	Budget       *BudgetConfig       `toml:"budget"`
	Priority     []string            `toml:"priority"`
	Vocabularies []ServiceVocabulary `toml:"vocabulary"`
}

// BudgetConfig overrides the context character budgets
type BudgetConfig struct {
	Conversation int `toml:"conversation"`
	UserMemory   int `toml:"user_memory"`
	Summary      int `toml:"summary"`
	Total        int `toml:"total"`
}

// ServiceVocabulary binds lexical cues to one service
type ServiceVocabulary struct {
	Service string   `toml:"service"`
	Cues    []string `toml:"cues"`
}

// Validate checks the config file for unknown services and empty cue sets
func (c *AppConfig) Validate() error {
	for _, id := range c.Priority {
		if _, err := types.ParseService(id); err != nil {
			return goerr.Wrap(err, "invalid service in priority", goerr.V("service", id))
		}
	}
	for _, v := range c.Vocabularies {
		if _, err := types.ParseService(v.Service); err != nil {
			return goerr.Wrap(err, "invalid service in vocabulary", goerr.V("service", v.Service))
		}
		if len(v.Cues) == 0 {
			return goerr.New("vocabulary requires at least one cue", goerr.V("service", v.Service))
		}
	}
	return nil
}

// Flags returns CLI flags for assistant configuration
func (a *Assistant) Flags() []cli.Flag {
	defaults := memory.DefaultBudgets()
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to a TOML file overriding budgets, routing vocabularies and priority",
			Sources:     cli.EnvVars("MNEMOSYNE_CONFIG"),
			Destination: &a.configPath,
		},
		&cli.IntFlag{
			Name:        "budget-conversation",
			Usage:       "Character budget for conversation memory in the assembled context",
			Value:       defaults.Conversation,
			Sources:     cli.EnvVars("MNEMOSYNE_BUDGET_CONVERSATION"),
			Destination: &a.conversationBudget,
		},
		&cli.IntFlag{
			Name:        "budget-user-memory",
			Usage:       "Character budget for user memory in the assembled context",
			Value:       defaults.UserMemory,
			Sources:     cli.EnvVars("MNEMOSYNE_BUDGET_USER_MEMORY"),
			Destination: &a.userMemoryBudget,
		},
		&cli.IntFlag{
			Name:        "budget-summary",
			Usage:       "Character budget for conversation summaries in the assembled context",
			Value:       defaults.Summary,
			Sources:     cli.EnvVars("MNEMOSYNE_BUDGET_SUMMARY"),
			Destination: &a.summaryBudget,
		},
		&cli.IntFlag{
			Name:        "budget-total",
			Usage:       "Total character budget for the assembled context",
			Value:       defaults.Total,
			Sources:     cli.EnvVars("MNEMOSYNE_BUDGET_TOTAL"),
			Destination: &a.totalBudget,
		},
		&cli.IntFlag{
			Name:        "summary-interval",
			Usage:       "Refresh the conversation summary every N turns",
			Value:       memory.DefaultSummaryInterval,
			Sources:     cli.EnvVars("MNEMOSYNE_SUMMARY_INTERVAL"),
			Destination: &a.summaryInterval,
		},
		&cli.DurationFlag{
			Name:        "agent-timeout",
			Usage:       "Timeout for a single external service invocation",
			Value:       agent.DefaultTimeout,
			Sources:     cli.EnvVars("MNEMOSYNE_AGENT_TIMEOUT"),
			Destination: &a.agentTimeout,
		},
	}
}

// LogAttrs returns log attributes for the assistant configuration
func (a *Assistant) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("config", a.configPath),
		slog.Int("budget_conversation", a.conversationBudget),
		slog.Int("budget_user_memory", a.userMemoryBudget),
		slog.Int("budget_summary", a.summaryBudget),
		slog.Int("budget_total", a.totalBudget),
		slog.Int("summary_interval", a.summaryInterval),
		slog.Duration("agent_timeout", a.agentTimeout),
	}
}

// Configure validates the flags and returns use case options reflecting them.
// When a routing config file is given, its vocabularies and priority replace
// the built-in ones.
func (a *Assistant) Configure() ([]usecase.Option, error) {
	budgets := memory.Budgets{
		Conversation: a.conversationBudget,
		UserMemory:   a.userMemoryBudget,
		Summary:      a.summaryBudget,
		Total:        a.totalBudget,
	}

	var fileCfg *AppConfig
	if a.configPath != "" {
		cfg, err := loadAppConfig(a.configPath)
		if err != nil {
			return nil, err
		}
		fileCfg = cfg
		if cfg.Budget != nil {
			budgets = memory.Budgets{
				Conversation: cfg.Budget.Conversation,
				UserMemory:   cfg.Budget.UserMemory,
				Summary:      cfg.Budget.Summary,
				Total:        cfg.Budget.Total,
			}
		}
	}

	if err := budgets.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid context budgets")
	}
	if a.summaryInterval <= 0 {
		return nil, goerr.New("summary-interval must be positive", goerr.V("interval", a.summaryInterval))
	}
	if a.agentTimeout <= 0 {
		return nil, goerr.New("agent-timeout must be positive", goerr.V("timeout", a.agentTimeout))
	}

	opts := []usecase.Option{
		usecase.WithBudgets(budgets),
		usecase.WithSummaryInterval(a.summaryInterval),
		usecase.WithAgentTimeout(a.agentTimeout),
	}

	if fileCfg != nil {
		routerOpts, err := fileCfg.routerOptions()
		if err != nil {
			return nil, err
		}
		if len(routerOpts) > 0 {
			opts = append(opts, usecase.WithRouter(router.New(routerOpts...)))
		}
	}

	return opts, nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	var cfg AppConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.V("path", path))
	}

	return &cfg, nil
}

func (c *AppConfig) routerOptions() ([]router.Option, error) {
	var opts []router.Option
	if len(c.Priority) > 0 {
		order := make([]types.Service, 0, len(c.Priority))
		for _, id := range c.Priority {
			svc, err := types.ParseService(id)
			if err != nil {
				return nil, goerr.Wrap(err, "invalid priority entry")
			}
			order = append(order, svc)
		}
		opts = append(opts, router.WithPriority(order))
	}
	for _, v := range c.Vocabularies {
		svc, err := types.ParseService(v.Service)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid vocabulary entry")
		}
		opts = append(opts, router.WithVocabulary(svc, v.Cues))
	}
	return opts, nil
}
