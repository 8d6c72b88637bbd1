package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/utils/errutil"
	"github.com/aiga-lab/mnemosyne/pkg/utils/safe"
)

type chatRequest struct {
	Message        string   `json:"message"`
	UserID         string   `json:"user_id"`
	ConversationID string   `json:"conversation_id"`
	AgentMode      bool     `json:"agent_mode"`
	AllowedApps    []string `json:"allowed_apps,omitempty"`
}

type chatResponse struct {
	Text           string  `json:"text"`
	ServiceUsed    *string `json:"service_used"`
	Status         string  `json:"status"`
	ConversationID string  `json:"conversation_id"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid chat request body"), http.StatusBadRequest)
		return
	}

	turnReq := &model.TurnRequest{
		Message:        req.Message,
		UserID:         types.UserID(req.UserID),
		ConversationID: types.ConversationID(req.ConversationID),
		AgentMode:      req.AgentMode,
	}
	for _, app := range req.AllowedApps {
		svc, err := types.ParseService(app)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid allowed app", goerr.V("app", app)), http.StatusBadRequest)
			return
		}
		turnReq.AllowedApps = append(turnReq.AllowedApps, svc)
	}

	if err := turnReq.Validate(); err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	result, err := s.uc.ProcessTurn(ctx, turnReq)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to process turn"), http.StatusInternalServerError)
		return
	}

	resp := chatResponse{
		Text:           result.Text,
		Status:         result.Status.String(),
		ConversationID: req.ConversationID,
	}
	if result.ServiceUsed != types.ServiceNone {
		used := result.ServiceUsed.String()
		resp.ServiceUsed = &used
	}

	writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID := chi.URLParam(r, "conversationID")
	userID := r.URL.Query().Get("user_id")
	if conversationID == "" || userID == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("conversation ID and user_id are required"), http.StatusBadRequest)
		return
	}

	stats, err := s.uc.Stats(ctx, types.UserID(userID), types.ConversationID(conversationID))
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to load stats"), http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, stats)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}
