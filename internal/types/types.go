package types

import (
	"errors"
	"time"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
)

// Client -> server frames. Code, identity and display name only appear on
// the join frame; the connection is bound afterwards.
type ClientMessage struct {
	Type          string `json:"type"` // "join" | "submitAnswer" | "hostStart" | "hostPause" | "hostResume" | "hostCloseRound"
	Code          string `json:"code,omitempty"`
	Identity      string `json:"identity,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer,omitempty"`
}

const (
	MsgJoin           = "join"
	MsgSubmitAnswer   = "submitAnswer"
	MsgHostStart      = "hostStart"
	MsgHostPause      = "hostPause"
	MsgHostResume     = "hostResume"
	MsgHostCloseRound = "hostCloseRound"
)

// Server -> client frames. Exactly one payload pointer is set, matching Type.
type ServerMessage struct {
	Type      string           `json:"type"`
	Player    *PlayerJoined    `json:"player,omitempty"`
	Snapshot  *Snapshot        `json:"snapshot,omitempty"`
	Round     *RoundStarted    `json:"round,omitempty"`
	Count     *SubmissionCount `json:"count,omitempty"`
	Result    *RoundResult     `json:"result,omitempty"`
	Completed *GameCompleted   `json:"completed,omitempty"`
	Paused    *GamePaused      `json:"paused,omitempty"`
	Resumed   *GameResumed     `json:"resumed,omitempty"`
	Error     *ErrorInfo       `json:"error,omitempty"`
}

const (
	MsgPlayerJoined    = "playerJoined"
	MsgStateSnapshot   = "stateSnapshot"
	MsgRoundStarted    = "roundStarted"
	MsgSubmissionCount = "submissionCount"
	MsgRoundResult     = "roundResult"
	MsgGameCompleted   = "gameCompleted"
	MsgGamePaused      = "gamePaused"
	MsgGameResumed     = "gameResumed"
	MsgError           = "error"
)

type PlayerInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

type StandingInfo struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
}

type QuestionInfo struct {
	Index    int      `json:"index"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

type PlayerJoined struct {
	Identity    string       `json:"identity"`
	DisplayName string       `json:"display_name"`
	Roster      []PlayerInfo `json:"roster"`
}

// Snapshot is sent to a client right after it joins (or rejoins) so it can
// render the current game without replaying history.
type Snapshot struct {
	Code          string        `json:"code"`
	Mode          string        `json:"mode"`
	Status        string        `json:"status"`
	Rounds        int           `json:"rounds"`
	QuestionIndex int           `json:"question_index"`
	Deadline      time.Time     `json:"deadline,omitempty"`
	Roster        []PlayerInfo  `json:"roster"`
	Question      *QuestionInfo `json:"question,omitempty"`
}

type RoundStarted struct {
	QuestionIndex int          `json:"question_index"`
	Question      QuestionInfo `json:"question"`
	Deadline      time.Time    `json:"deadline"`
}

type SubmissionCount struct {
	QuestionIndex int `json:"question_index"`
	Answered      int `json:"answered"`
	Total         int `json:"total"`
}

type RoundResult struct {
	QuestionIndex int            `json:"question_index"`
	CorrectAnswer string         `json:"correct_answer"`
	Standings     []StandingInfo `json:"standings"`
}

type GameCompleted struct {
	FinalStandings []StandingInfo `json:"final_standings"`
}

type GamePaused struct {
	RemainingMs int64 `json:"remaining_ms"`
}

type GameResumed struct {
	QuestionIndex int       `json:"question_index"`
	Deadline      time.Time `json:"deadline"`
}

type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error kinds not derived from engine errors.
const (
	KindSessionNotFound = "session_not_found"
	KindInvalidIdentity = "invalid_identity"
	KindNotInSession    = "not_in_session"
	KindBadFrame        = "bad_frame"
	KindDependency      = "dependency_error"
	KindInternal        = "internal"
)

var engineKinds = map[error]string{
	engine.ErrSessionClosed:       "session_closed",
	engine.ErrNotStarted:          "not_started",
	engine.ErrAlreadyStarted:      "already_started",
	engine.ErrSessionPaused:       "session_paused",
	engine.ErrNotPaused:           "not_paused",
	engine.ErrEmptyRoster:         "empty_roster",
	engine.ErrNotHost:             "not_host",
	engine.ErrUnknownParticipant:  "unknown_participant",
	engine.ErrStaleSubmission:     "stale_submission",
	engine.ErrDuplicateSubmission: "duplicate_submission",
	engine.ErrStaleGeneration:     "stale_generation",
	engine.ErrUnsupportedCommand:  "bad_frame",
}

// KindOf maps an error to its stable wire kind.
func KindOf(err error) string {
	for sentinel, kind := range engineKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

func ErrorFrame(kind, message string) ServerMessage {
	return ServerMessage{Type: MsgError, Error: &ErrorInfo{Kind: kind, Message: message}}
}

func RosterOf(s engine.State) []PlayerInfo {
	out := make([]PlayerInfo, 0, len(s.Roster))
	for _, p := range s.Roster {
		out = append(out, PlayerInfo{Identity: p.ID, DisplayName: p.DisplayName, Score: p.Score})
	}
	return out
}

func StandingsOf(standings []engine.Standing) []StandingInfo {
	out := make([]StandingInfo, 0, len(standings))
	for _, st := range standings {
		out = append(out, StandingInfo{
			Identity:    st.ParticipantID,
			DisplayName: st.DisplayName,
			Score:       st.Score,
			Rank:        st.Rank,
		})
	}
	return out
}

// QuestionFor shapes a question for broadcast. The answer key never crosses
// the wire here.
func QuestionFor(s engine.State, index int) QuestionInfo {
	q := s.Questions[index]
	return QuestionInfo{
		Index:    index,
		Text:     q.Text,
		Type:     string(q.Type),
		Options:  q.Options,
		ImageURL: q.ImageURL,
	}
}

func SnapshotOf(s engine.State) Snapshot {
	snap := Snapshot{
		Code:          s.Code,
		Mode:          string(s.Mode),
		Status:        string(s.Status),
		Rounds:        len(s.Questions),
		QuestionIndex: s.Round,
		Roster:        RosterOf(s),
	}
	if s.Status == engine.StatusInProgress {
		snap.Deadline = s.Deadline
		q := QuestionFor(s, s.Round)
		snap.Question = &q
	}
	return snap
}
