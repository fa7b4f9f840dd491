package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
	"github.com/mRedzuan451/quiz-game-backend/internal/gamecode"
	"github.com/mRedzuan451/quiz-game-backend/internal/hub"
	"github.com/mRedzuan451/quiz-game-backend/internal/question"
	"github.com/mRedzuan451/quiz-game-backend/internal/session"
)

type createGameRequest struct {
	HostID             string `json:"host_id"`
	Mode               string `json:"mode"`
	Rounds             int    `json:"rounds"`
	TimePerQuestionSec int    `json:"time_per_question_sec"`
}

type createGameResponse struct {
	Code               string `json:"code"`
	Mode               string `json:"mode"`
	Rounds             int    `json:"rounds"`
	TimePerQuestionSec int    `json:"time_per_question_sec"`
}

type gameResponse struct {
	Code               string `json:"code"`
	Mode               string `json:"mode"`
	Status             string `json:"status"`
	Rounds             int    `json:"rounds"`
	TimePerQuestionSec int    `json:"time_per_question_sec"`
	Players            int    `json:"players"`
	CurrentRound       int    `json:"current_round"`
	GuestIdentity      string `json:"guest_identity,omitempty"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CreateGame resolves a question set for the mode, mints a unique code and
// registers a Waiting session.
func (s *Server) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	if req.HostID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "host_id is required")
		return
	}

	mode, ok := parseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "mode must be general or kids")
		return
	}
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = s.DefaultRounds
	}
	perQuestion := time.Duration(req.TimePerQuestionSec) * time.Second
	if perQuestion <= 0 {
		perQuestion = s.DefaultTimePerQuestion
	}

	questions, err := s.Questions.FetchRandomQuestions(r.Context(), mode, rounds)
	if err != nil {
		if errors.Is(err, question.ErrInsufficientQuestions) {
			writeError(w, http.StatusBadRequest, "insufficient_questions", "not enough questions for this mode and round count")
			return
		}
		s.Log.Error("fetch questions failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "dependency_error", "question bank unavailable")
		return
	}

	code, err := gamecode.Generate(s.Hub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to generate code")
		return
	}

	state := engine.New(code, req.HostID, mode, questions, perQuestion, time.Now())
	reply := make(chan *session.Session, 1)
	s.Hub.Inbox() <- hub.CreateSession{Code: code, State: state, Reply: reply}
	if <-reply == nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, createGameResponse{
		Code:               code,
		Mode:               string(mode),
		Rounds:             rounds,
		TimePerQuestionSec: int(perQuestion / time.Second),
	})
}

// GetGame lets a client validate a code before opening the socket. Callers
// without an account get a freshly minted guest identity to join with.
func (s *Server) GetGame(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	reply := make(chan *session.Session, 1)
	s.Hub.Inbox() <- hub.GetSession{Code: code, Reply: reply}
	sess := <-reply
	if sess == nil {
		writeError(w, http.StatusNotFound, "session_not_found", "no game with that code")
		return
	}

	viewReply := make(chan session.View, 1)
	sess.Inbox() <- session.GetState{Reply: viewReply}
	view := <-viewReply

	resp := gameResponse{
		Code:               view.State.Code,
		Mode:               string(view.State.Mode),
		Status:             string(view.State.Status),
		Rounds:             len(view.State.Questions),
		TimePerQuestionSec: int(view.State.PerQuestion / time.Second),
		Players:            len(view.State.Roster),
		CurrentRound:       view.State.Round,
	}
	if r.URL.Query().Get("identity") == "" {
		resp.GuestIdentity = "guest-" + uuid.NewString()
	}
	writeJSON(w, http.StatusOK, resp)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func parseMode(m string) (engine.Mode, bool) {
	switch engine.Mode(m) {
	case engine.ModeGeneral:
		return engine.ModeGeneral, true
	case engine.ModeKids:
		return engine.ModeKids, true
	default:
		return "", false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Kind: kind, Message: message})
}
