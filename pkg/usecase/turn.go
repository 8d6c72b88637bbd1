package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/aiga-lab/mnemosyne/pkg/agent"
	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/memory"
	"github.com/aiga-lab/mnemosyne/pkg/router"
	"github.com/aiga-lab/mnemosyne/pkg/utils/async"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
)

//go:embed prompt/direct.md
var directPromptTmpl string

//go:embed prompt/simple.md
var simplePromptTmpl string

var (
	directPrompt = template.Must(template.New("direct").Parse(directPromptTmpl))
	simplePrompt = template.Must(template.New("simple").Parse(simplePromptTmpl))
)

// fallbackAnswer is the canned line when even the direct completion path
// fails. The turn is still recorded.
const fallbackAnswer = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// routerHistoryLimit is how many recent rows feed the router's
// history-recency tie-break
const routerHistoryLimit = 6

// ProcessTurn runs one message through the full pipeline: route, assemble
// memory context, answer directly or dispatch one service agent, then record
// the turn. Memory failures degrade the answer instead of failing the turn;
// the recorder runs even for failed turns.
func (uc *UseCases) ProcessTurn(ctx context.Context, req *model.TurnRequest) (*model.TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid turn request")
	}

	logger := logging.From(ctx)
	state := types.TurnStateReceived

	history := uc.recentHistory(ctx, req)
	decision := uc.router.Classify(req.Message, history, req.AgentMode, req.AllowedApps)
	state = types.TurnStateRouted
	logger.Debug("turn routed", "state", state,
		"service", decision.Service.String(), "simple", decision.Simple)

	var result *model.TurnResult
	if decision.Simple {
		result = uc.simpleTurn(ctx, req)
	} else if decision.Service == types.ServiceNone {
		result = uc.directTurn(ctx, req)
	} else {
		result = uc.dispatchedTurn(ctx, req, decision.Service)
	}

	// Always record, even failed turns. A recording failure is logged, not
	// surfaced; the answer was already produced.
	if _, err := uc.recorder.Record(ctx, req.UserID, req.ConversationID, req.Message, result.Text); err != nil {
		logger.Error("failed to record turn",
			"conversationID", req.ConversationID, "error", err)
	} else {
		logger.Debug("turn recorded", "state", types.TurnStateRecorded)
	}

	return result, nil
}

// recentHistory loads the recent rows for the router's history check. The
// store being unavailable only costs the tie-break, not the turn.
func (uc *UseCases) recentHistory(ctx context.Context, req *model.TurnRequest) []router.HistoryEntry {
	rows, err := uc.repo.ConversationMemory().ListRecent(ctx, req.UserID, req.ConversationID, routerHistoryLimit)
	if err != nil {
		logging.From(ctx).Warn("failed to load recent history for routing",
			"conversationID", req.ConversationID, "error", err)
		return nil
	}

	// ListRecent returns newest first; the router wants oldest first
	history := make([]router.HistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		history = append(history, router.HistoryEntry{
			Role:    rows[i].Role,
			Content: rows[i].Content,
		})
	}
	return history
}

// simpleTurn answers greetings and acknowledgements without memory retrieval
func (uc *UseCases) simpleTurn(ctx context.Context, req *model.TurnRequest) *model.TurnResult {
	logging.From(ctx).Debug("turn state", "state", types.TurnStateDirectAnswer, "path", "simple")

	text, err := uc.complete(ctx, simplePrompt, promptData{Message: req.Message})
	if err != nil {
		logging.From(ctx).Error("simple completion failed", "error", err)
		return &model.TurnResult{
			Text:        fallbackAnswer,
			ServiceUsed: types.ServiceNone,
			Status:      types.TurnStatusDegraded,
		}
	}

	return &model.TurnResult{
		Text:        text,
		ServiceUsed: types.ServiceNone,
		Status:      types.TurnStatusSuccess,
	}
}

// directTurn answers with the language model enriched by assembled memory.
// Memory store failure degrades to an answer without context.
func (uc *UseCases) directTurn(ctx context.Context, req *model.TurnRequest) *model.TurnResult {
	logger := logging.From(ctx)

	assembled, memoryDegraded := uc.assembleContext(ctx, req)
	logger.Debug("turn state", "state", types.TurnStateDirectAnswer)

	text, err := uc.complete(ctx, directPrompt, promptData{
		Message: req.Message,
		Context: assembled.Text,
	})
	if err != nil {
		logger.Error("direct completion failed", "error", err)
		return &model.TurnResult{
			Text:        fallbackAnswer,
			ServiceUsed: types.ServiceNone,
			Status:      types.TurnStatusDegraded,
		}
	}

	uc.recordSurfaced(ctx, req.UserID, assembled)

	status := types.TurnStatusSuccess
	if memoryDegraded {
		status = types.TurnStatusDegraded
	}
	return &model.TurnResult{
		Text:        text,
		ServiceUsed: types.ServiceNone,
		Status:      status,
	}
}

// dispatchedTurn hands the turn to the single service agent resolved by the
// router and maps the executor's error class to the turn status.
func (uc *UseCases) dispatchedTurn(ctx context.Context, req *model.TurnRequest, service types.Service) *model.TurnResult {
	logger := logging.From(ctx)

	assembled, memoryDegraded := uc.assembleContext(ctx, req)
	logger.Debug("turn state", "state", types.TurnStateToolDispatched, "service", service.String())

	structured, err := uc.executor.Invoke(ctx, req.UserID, service, req.Message, assembled.Text)
	uc.recordSurfaced(ctx, req.UserID, assembled)

	status := types.TurnStatusSuccess
	switch {
	case errors.Is(err, interfaces.ErrNotConnected):
		status = types.TurnStatusError
	case errors.Is(err, agent.ErrToolTimeout), errors.Is(err, agent.ErrToolExecution):
		status = types.TurnStatusDegraded
	case err != nil:
		logger.Error("service agent failed", "service", service.String(), "error", err)
		status = types.TurnStatusDegraded
	case structured.Status == types.ResultStatusPartial:
		status = types.TurnStatusDegraded
	case structured.Status == types.ResultStatusError:
		status = types.TurnStatusDegraded
	case memoryDegraded:
		status = types.TurnStatusDegraded
	}
	if err != nil {
		logger.Warn("service agent degraded", "service", service.String(), "error", err)
	}

	return &model.TurnResult{
		Text:        structured.Answer,
		ServiceUsed: service,
		Status:      status,
	}
}

// assembleContext runs the three-tier memory assembly. Failure returns an
// empty context and marks the turn degraded; memory is an enhancement, not a
// hard dependency.
func (uc *UseCases) assembleContext(ctx context.Context, req *model.TurnRequest) (*memory.AssembledContext, bool) {
	assembled, err := uc.assembler.Assemble(ctx, req.UserID, req.ConversationID, req.Message)
	if err != nil {
		logging.From(ctx).Warn("context assembly failed, answering without memory",
			"conversationID", req.ConversationID, "error", err)
		return &memory.AssembledContext{}, true
	}
	return assembled, false
}

// recordSurfaced boosts importance of surfaced user memories off the
// critical path
func (uc *UseCases) recordSurfaced(ctx context.Context, userID types.UserID, assembled *memory.AssembledContext) {
	if assembled == nil || len(assembled.UserMemoryIDs) == 0 {
		return
	}
	async.Dispatch(ctx, func(ctx context.Context) error {
		uc.assembler.RecordSurfacedAccess(ctx, userID, assembled)
		return nil
	})
}

type promptData struct {
	Message string
	Context string
}

// complete renders the prompt template and runs a one-shot completion
func (uc *UseCases) complete(ctx context.Context, tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render prompt")
	}

	session, err := uc.llm.NewSession(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buf.String()))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate completion")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("empty completion response")
	}

	return strings.TrimSpace(strings.Join(resp.Texts, "\n")), nil
}

// Stats reports per-role message counts for one conversation
func (uc *UseCases) Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error) {
	stats, err := uc.repo.ConversationMemory().Stats(ctx, userID, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load conversation stats",
			goerr.V("conversationID", conversationID))
	}
	return stats, nil
}
