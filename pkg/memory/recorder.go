package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// DefaultSummaryInterval is how many turns pass between summary refreshes
const DefaultSummaryInterval = 4

// extractedFactImportance is assigned to memories created by cue-phrase
// extraction
const extractedFactImportance = 0.8

// factPatterns maps durable-fact cue phrases to the memory kind stored when
// a user message contains them. At most one memory per group per message.
var factPatterns = []struct {
	kind types.MemoryKind
	cues []string
}{
	{types.MemoryKindFact, []string{"my name is", "i'm", "i am", "call me"}},
	{types.MemoryKindFact, []string{"i live in", "i'm from", "based in", "located in"}},
	{types.MemoryKindFact, []string{"i work as", "my job is", "i'm a", "profession"}},
	{types.MemoryKindPreference, []string{"hobby", "hobbies", "i like", "i enjoy", "i love"}},
	{types.MemoryKindPreference, []string{"i prefer", "i like", "i hate", "i don't like"}},
}

// Recorder writes turn outcomes back into the memory tiers. Every turn is
// recorded, including failed ones; fact extraction and summary refresh ride
// on top of the base rows.
type Recorder struct {
	repo            interfaces.Repository
	embedder        Embedder
	llm             gollem.LLMClient
	summaryInterval int
}

type RecorderOption func(*Recorder)

func WithSummaryInterval(n int) RecorderOption {
	return func(r *Recorder) { r.summaryInterval = n }
}

func NewRecorder(repo interfaces.Repository, embedder Embedder, llm gollem.LLMClient, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:            repo,
		embedder:        embedder,
		llm:             llm,
		summaryInterval: DefaultSummaryInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists one completed turn: the user message and the final response
// as conversation memory rows sharing the next turn number. Returns the turn
// number assigned.
func (r *Recorder) Record(ctx context.Context, userID types.UserID, conversationID types.ConversationID, userMessage, response string) (int, error) {
	last, err := r.repo.ConversationMemory().LastTurnNumber(ctx, userID, conversationID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to resolve turn number",
			goerr.V("conversationID", conversationID))
	}
	turn := last + 1

	if err := r.putTurnRow(ctx, userID, conversationID, types.RoleUser, userMessage, turn); err != nil {
		return 0, err
	}
	if err := r.putTurnRow(ctx, userID, conversationID, types.RoleAssistant, response, turn); err != nil {
		return 0, err
	}

	r.extractFacts(ctx, userID, conversationID, userMessage)

	if r.summaryInterval > 0 && turn%r.summaryInterval == 0 {
		if err := r.RefreshSummary(ctx, userID, conversationID); err != nil {
			logging.From(ctx).Warn("failed to refresh conversation summary",
				"conversationID", conversationID, "error", err)
		}
	}

	return turn, nil
}

func (r *Recorder) putTurnRow(ctx context.Context, userID types.UserID, conversationID types.ConversationID, role types.Role, content string, turn int) error {
	row := &model.ConversationMemory{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        content,
		Role:           role,
		TurnNumber:     turn,
	}

	// A failed embedding must not lose the turn; the row is still written and
	// simply stays invisible to vector search.
	embedding, err := r.embedder.Embed(ctx, content)
	if err != nil {
		logging.From(ctx).Warn("failed to embed turn content, storing without embedding",
			"conversationID", conversationID, "turn", turn, "error", err)
	} else {
		row.Embedding = embedding
	}

	if _, err := r.repo.ConversationMemory().Put(ctx, row); err != nil {
		return goerr.Wrap(err, "failed to store conversation memory",
			goerr.V("conversationID", conversationID), goerr.V("turn", turn), goerr.V("role", role))
	}

	return nil
}

// extractFacts scans a user message for durable-fact cue phrases and stores
// matches as user memories. Extraction failures are logged and swallowed.
func (r *Recorder) extractFacts(ctx context.Context, userID types.UserID, conversationID types.ConversationID, message string) {
	lower := strings.ToLower(message)

	for _, group := range factPatterns {
		for _, cue := range group.cues {
			idx := strings.Index(lower, cue)
			if idx < 0 {
				continue
			}

			rest := lower[idx+len(cue):]
			if cut := strings.IndexByte(rest, '.'); cut >= 0 {
				rest = rest[:cut]
			}
			rest = strings.TrimSpace(rest)
			if rest == "" {
				continue
			}

			mem := &model.UserMemory{
				UserID:         userID,
				Kind:           group.kind,
				Content:        fmt.Sprintf("User %s %s", cue, rest),
				ConversationID: conversationID,
				Importance:     extractedFactImportance,
			}
			if embedding, err := r.embedder.Embed(ctx, mem.Content); err == nil {
				mem.Embedding = embedding
			}

			if _, err := r.repo.UserMemory().Put(ctx, mem); err != nil {
				logging.From(ctx).Warn("failed to store extracted fact", "error", err)
			}
			break
		}
	}
}

// conversationDigest is the JSON structure the summarization session returns
type conversationDigest struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyTopics []string `json:"key_topics"`
}

// summaryTranscriptLimit bounds how many recent rows feed the summarizer
const summaryTranscriptLimit = 20

// RefreshSummary regenerates the rolling summary of a conversation from its
// recent rows via a structured-output session and upserts it with a fresh
// embedding.
func (r *Recorder) RefreshSummary(ctx context.Context, userID types.UserID, conversationID types.ConversationID) error {
	rows, err := r.repo.ConversationMemory().ListRecent(ctx, userID, conversationID, summaryTranscriptLimit)
	if err != nil {
		return goerr.Wrap(err, "failed to load recent conversation rows",
			goerr.V("conversationID", conversationID))
	}
	if len(rows) == 0 {
		return nil
	}

	// rows arrive newest first; the transcript reads oldest first
	var b strings.Builder
	for i := len(rows) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", rows[i].Role, rows[i].Content)
	}

	schema := &gollem.Parameter{
		Title:       "ConversationDigest",
		Description: "Rolling digest of one conversation",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"title": {
				Type:        gollem.TypeString,
				Description: "Short title for the conversation, at most eight words.",
				Required:    true,
			},
			"summary": {
				Type:        gollem.TypeString,
				Description: "Plain text synopsis of the conversation so far in two to four sentences.",
				Required:    true,
			},
			"key_topics": {
				Type:        gollem.TypeArray,
				Description: "Up to five short topic labels.",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
		},
	}

	session, err := r.llm.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create summarization session")
	}

	prompt := fmt.Sprintf(`Summarize the following conversation between a user and an assistant.
Return a short title, a two-to-four sentence synopsis, and up to five key topic labels.

Conversation:
%s`, b.String())

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return goerr.Wrap(err, "failed to generate conversation digest")
	}
	if len(resp.Texts) == 0 {
		return goerr.New("conversation digest generation returned empty result")
	}

	var digest conversationDigest
	if err := json.Unmarshal([]byte(resp.Texts[0]), &digest); err != nil {
		return goerr.Wrap(err, "failed to parse conversation digest JSON",
			goerr.V("response", resp.Texts[0]))
	}

	stats, err := r.repo.ConversationMemory().Stats(ctx, userID, conversationID)
	if err != nil {
		return goerr.Wrap(err, "failed to load conversation stats",
			goerr.V("conversationID", conversationID))
	}

	summary := &model.ConversationSummary{
		UserID:         userID,
		ConversationID: conversationID,
		Title:          digest.Title,
		Summary:        digest.Summary,
		KeyTopics:      digest.KeyTopics,
		MessageCount:   stats.TotalMessages,
	}
	if embedding, err := r.embedder.Embed(ctx, digest.Summary); err == nil {
		summary.Embedding = embedding
	}

	if _, err := r.repo.Summary().Upsert(ctx, summary); err != nil {
		return goerr.Wrap(err, "failed to upsert conversation summary",
			goerr.V("conversationID", conversationID))
	}

	return nil
}
