package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
)

// ChatUseCase is the turn-processing surface the HTTP layer needs.
// Satisfied by *usecase.UseCases.
type ChatUseCase interface {
	ProcessTurn(ctx context.Context, req *model.TurnRequest) (*model.TurnResult, error)
	Stats(ctx context.Context, userID types.UserID, conversationID types.ConversationID) (*model.ConversationStats, error)
}

type Server struct {
	router *chi.Mux
	uc     ChatUseCase
}

// New creates the HTTP server over the chat use case
func New(uc ChatUseCase) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.chatHandler)
		r.Get("/conversations/{conversationID}/stats", s.statsHandler)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger binds a request-scoped logger carrying the request ID
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
