package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/aiga-lab/mnemosyne/pkg/cli/config"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/usecase"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
)

func cmdChat() *cli.Command {
	var userID string
	var conversationID string
	var agentMode bool
	var allowedApps []string
	var message string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var assistantCfg config.Assistant
	var integrationsCfg config.Integrations

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User ID owning the memory records",
			Value:       "local",
			Sources:     cli.EnvVars("MNEMOSYNE_USER"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "conversation",
			Usage:       "Conversation ID (a new one is generated when empty)",
			Sources:     cli.EnvVars("MNEMOSYNE_CONVERSATION"),
			Destination: &conversationID,
		},
		&cli.BoolFlag{
			Name:        "agent-mode",
			Usage:       "Allow turns to be dispatched to external service agents",
			Sources:     cli.EnvVars("MNEMOSYNE_AGENT_MODE"),
			Destination: &agentMode,
		},
		&cli.StringSliceFlag{
			Name:        "allow",
			Usage:       "Services the agent may use (gmail, calendar, docs, notion, github)",
			Sources:     cli.EnvVars("MNEMOSYNE_ALLOWED_APPS"),
			Destination: &allowedApps,
		},
		&cli.StringFlag{
			Name:        "message",
			Aliases:     []string{"m"},
			Usage:       "Process a single message and exit instead of starting a session",
			Destination: &message,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, assistantCfg.Flags()...)
	flags = append(flags, integrationsCfg.Flags()...)

	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"c"},
		Usage:   "Chat with the assistant from the terminal",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			allowed := make([]types.Service, 0, len(allowedApps))
			for _, app := range allowedApps {
				svc, err := types.ParseService(app)
				if err != nil {
					return goerr.Wrap(err, "invalid allowed app", goerr.V("app", app))
				}
				allowed = append(allowed, svc)
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Gemini client")
			}

			ucOpts, err := assistantCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure assistant")
			}

			uc := usecase.New(repo, llmClient, integrationsCfg.Configure(), ucOpts...)

			if conversationID == "" {
				conversationID = uuid.NewString()
			}

			session := &chatSession{
				uc:             uc,
				userID:         types.UserID(userID),
				conversationID: types.ConversationID(conversationID),
				agentMode:      agentMode,
				allowedApps:    allowed,
			}

			if message != "" {
				return session.oneShot(ctx, message)
			}
			return session.interactive(ctx)
		},
	}
}

type chatSession struct {
	uc             *usecase.UseCases
	userID         types.UserID
	conversationID types.ConversationID
	agentMode      bool
	allowedApps    []types.Service
}

func (s *chatSession) process(ctx context.Context, message string) (*model.TurnResult, error) {
	return s.uc.ProcessTurn(ctx, &model.TurnRequest{
		Message:        message,
		UserID:         s.userID,
		ConversationID: s.conversationID,
		AgentMode:      s.agentMode,
		AllowedApps:    s.allowedApps,
	})
}

func (s *chatSession) oneShot(ctx context.Context, message string) error {
	result, err := s.process(ctx, message)
	if err != nil {
		return goerr.Wrap(err, "failed to process message")
	}
	printResult(result)
	return nil
}

func (s *chatSession) interactive(ctx context.Context) error {
	header := color.New(color.FgHiBlack)
	header.Printf("conversation %s (agent mode: %v)\n", s.conversationID, s.agentMode)
	header.Println(`type "exit" or press Ctrl-D to quit`)

	prompt := color.New(color.FgGreen, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		result, err := s.process(ctx, line)
		if err != nil {
			color.Red("error: %v", err)
			continue
		}
		printResult(result)
	}
}

func printResult(result *model.TurnResult) {
	name := color.New(color.FgCyan, color.Bold)
	name.Print("assistant> ")
	fmt.Println(result.Text)

	if result.Status != types.TurnStatusSuccess || result.ServiceUsed != types.ServiceNone {
		meta := color.New(color.FgHiBlack)
		if result.ServiceUsed != types.ServiceNone {
			meta.Printf("  [service: %s, status: %s]\n", result.ServiceUsed, result.Status)
		} else {
			meta.Printf("  [status: %s]\n", result.Status)
		}
	}
}
