package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/hub"
	"github.com/mRedzuan451/quiz-game-backend/internal/question"
	"github.com/mRedzuan451/quiz-game-backend/internal/ws"
)

type Server struct {
	Hub                    *hub.Hub
	Questions              question.Provider
	Names                  ws.NameResolver
	Router                 *ws.Router
	Log                    *zap.Logger
	DefaultRounds          int
	DefaultTimePerQuestion time.Duration
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/games", s.CreateGame)
	r.Get("/games/{code}", s.GetGame)
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(s.Hub, s.Router, s.Names, s.Log))
	return r
}
