package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// AnswerWordLimit bounds the answer field of a structured result. Longer
// answers are truncated, never rejected.
const AnswerWordLimit = 50

// TurnRequest is one incoming message with its routing controls.
// AgentMode is authoritative: when false, no tool agent may run regardless of
// the message content. AllowedApps, when non-empty, constrains classification
// to that set.
type TurnRequest struct {
	Message        string
	UserID         types.UserID
	ConversationID types.ConversationID
	AgentMode      bool
	AllowedApps    []types.Service
}

// Validate checks the turn request
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return goerr.New("message is required")
	}
	if r.UserID == "" {
		return goerr.New("user ID is required")
	}
	if r.ConversationID == "" {
		return goerr.New("conversation ID is required")
	}
	for _, app := range r.AllowedApps {
		if !app.IsValid() {
			return goerr.New("invalid allowed app", goerr.V("app", app))
		}
	}
	return nil
}

// TurnResult is the outcome of one processed turn as returned to the caller.
// ServiceUsed is ServiceNone when the turn was answered directly.
type TurnResult struct {
	Text        string
	ServiceUsed types.Service
	Status      types.TurnStatus
}

// StructuredResult is the normalized, bounded response shape produced by a
// service agent regardless of success or failure.
type StructuredResult struct {
	Answer      string             `json:"answer"`
	Status      types.ResultStatus `json:"status"`
	ActionTaken string             `json:"action_taken,omitempty"`
	NextStep    string             `json:"next_step,omitempty"`
}

// Normalize enforces the result bounds: the answer is truncated to the word
// limit and an unknown status falls back to error.
func (r *StructuredResult) Normalize() {
	r.Answer = TruncateWords(r.Answer, AnswerWordLimit)
	if !r.Status.IsValid() {
		r.Status = types.ResultStatusError
	}
}

// TruncateWords limits s to at most n words, appending an ellipsis when
// content was dropped.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[:n], " ") + "…"
}

// ConversationStats reports per-role message counts for one conversation
type ConversationStats struct {
	TotalMessages     int `json:"total_messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
}
