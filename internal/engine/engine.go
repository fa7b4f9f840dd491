package engine

import (
	"errors"
	"time"

	"github.com/mRedzuan451/quiz-game-backend/internal/ledger"
)

var ErrSessionClosed = errors.New("session already completed")
var ErrNotStarted = errors.New("session not in progress")
var ErrAlreadyStarted = errors.New("session already started")
var ErrSessionPaused = errors.New("session is paused")
var ErrNotPaused = errors.New("session is not paused")
var ErrEmptyRoster = errors.New("no participants to start with")
var ErrNotHost = errors.New("host-only operation")
var ErrUnknownParticipant = errors.New("participant not in roster")
var ErrStaleSubmission = errors.New("submission for a closed or ineligible round")
var ErrDuplicateSubmission = errors.New("participant already answered this round")
var ErrStaleGeneration = errors.New("round generation no longer current")
var ErrUnsupportedCommand = errors.New("unsupported command")

// BasePoints is the full value of a correct answer submitted with the whole
// answer window remaining.
const BasePoints = 100

type Mode string

const (
	ModeGeneral Mode = "general"
	ModeKids    Mode = "kids"
)

type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

type Participant struct {
	ID          string
	DisplayName string
	Score       int
	// EligibleFrom is the first round index this participant may answer.
	// Zero for anyone who joined before the game started; joiners during a
	// live round sit out until the next round boundary.
	EligibleFrom int
}

type Submission struct {
	ParticipantID string
	QuestionIndex int
	Raw           string
	At            time.Time
	Correct       bool
	Points        int
}

type Standing struct {
	ParticipantID string
	DisplayName   string
	Score         int
	Rank          int
}

type State struct {
	Code        string
	HostID      string
	Mode        Mode
	Status      Status
	Roster      []Participant
	Questions   []Question
	Round       int
	Gen         int
	Deadline    time.Time
	PerQuestion time.Duration
	// Remaining holds the frozen countdown while Paused.
	Remaining   time.Duration
	Submissions map[string]Submission
	Scores      *ledger.Ledger
	CreatedAt   time.Time
	EndedAt     time.Time
}

func New(code, hostID string, mode Mode, questions []Question, perQuestion time.Duration, now time.Time) State {
	return State{
		Code:        code,
		HostID:      hostID,
		Mode:        mode,
		Status:      StatusWaiting,
		Roster:      []Participant{},
		Questions:   questions,
		PerQuestion: perQuestion,
		Submissions: map[string]Submission{},
		Scores:      ledger.New(),
		CreatedAt:   now,
	}
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdStart        CommandType = "Start"
	CmdSubmitAnswer CommandType = "SubmitAnswer"
	CmdPause        CommandType = "Pause"
	CmdResume       CommandType = "Resume"
	CmdCloseRound   CommandType = "CloseRound"
)

type Command struct {
	Type          CommandType
	ParticipantID string
	DisplayName   string
	QuestionIndex int
	Answer        string
	// Gen is the round generation a CloseRound believes is current; stale
	// generations are rejected so a late timer cannot close a round twice.
	Gen int
	// Forced marks a host-initiated CloseRound (force-advance, or a retry
	// after a failed finalize).
	Forced bool
}

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtAnswerAccepted EventType = "AnswerAccepted"
	EvtRoundClosed    EventType = "RoundClosed"
	EvtGamePaused     EventType = "GamePaused"
	EvtGameResumed    EventType = "GameResumed"
	EvtGameCompleted  EventType = "GameCompleted"
)

type Event struct {
	Type          EventType
	ParticipantID string
	DisplayName   string
	QuestionIndex int
	Gen           int
	Deadline      time.Time
	Answered      int
	Total         int
	CorrectAnswer string
	Standings     []Standing
	Remaining     time.Duration
}

// Apply runs one command against the session state and returns the events it
// produced plus the successor state. On error the input state comes back
// unchanged. Apply never does I/O and never blocks; the caller owns
// serialization and the clock.
func Apply(s State, cmd Command, now time.Time) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdStart:
		return applyStart(s, cmd, now)
	case CmdSubmitAnswer:
		return applySubmit(s, cmd, now)
	case CmdPause:
		return applyPause(s, cmd, now)
	case CmdResume:
		return applyResume(s, cmd, now)
	case CmdCloseRound:
		return applyClose(s, cmd, now)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	if s.Status == StatusCompleted {
		return nil, s, ErrSessionClosed
	}

	// Idempotent: a second join under the same identity keeps the existing
	// record. Reconnects come through here.
	if _, ok := findParticipant(s, cmd.ParticipantID); ok {
		return nil, s, nil
	}

	p := Participant{
		ID:          cmd.ParticipantID,
		DisplayName: cmd.DisplayName,
	}
	if s.Status == StatusInProgress || s.Status == StatusPaused {
		p.EligibleFrom = s.Round + 1
	}

	newState := s
	newState.Roster = append(newState.Roster, p)
	newState.Scores.Register(p.ID)

	events := []Event{{
		Type:          EvtPlayerJoined,
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
	}}
	return events, newState, nil
}

func applyStart(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.ParticipantID != s.HostID {
		return nil, s, ErrNotHost
	}
	switch s.Status {
	case StatusCompleted:
		return nil, s, ErrSessionClosed
	case StatusInProgress, StatusPaused:
		return nil, s, ErrAlreadyStarted
	}
	if len(s.Roster) == 0 {
		return nil, s, ErrEmptyRoster
	}

	newState := s
	newState.Status = StatusInProgress
	newState.Gen++
	newState.Deadline = now.Add(s.PerQuestion)
	newState.Submissions = map[string]Submission{}

	events := []Event{{
		Type:          EvtRoundStarted,
		QuestionIndex: newState.Round,
		Gen:           newState.Gen,
		Deadline:      newState.Deadline,
	}}
	return events, newState, nil
}

func applySubmit(s State, cmd Command, now time.Time) ([]Event, State, error) {
	switch s.Status {
	case StatusCompleted:
		return nil, s, ErrSessionClosed
	case StatusWaiting:
		return nil, s, ErrNotStarted
	case StatusPaused:
		return nil, s, ErrSessionPaused
	}

	p, ok := findParticipant(s, cmd.ParticipantID)
	if !ok {
		return nil, s, ErrUnknownParticipant
	}
	if p.EligibleFrom > s.Round {
		return nil, s, ErrStaleSubmission
	}
	if cmd.QuestionIndex != s.Round {
		return nil, s, ErrStaleSubmission
	}
	if now.After(s.Deadline) {
		return nil, s, ErrStaleSubmission
	}
	if _, answered := s.Submissions[cmd.ParticipantID]; answered {
		return nil, s, ErrDuplicateSubmission
	}

	q := s.Questions[s.Round]
	correct := q.Answer.Matches(cmd.Answer)
	pts := scorePoints(correct, s.Deadline.Sub(now), s.PerQuestion)

	newState := s
	newState.Submissions[cmd.ParticipantID] = Submission{
		ParticipantID: cmd.ParticipantID,
		QuestionIndex: cmd.QuestionIndex,
		Raw:           cmd.Answer,
		At:            now,
		Correct:       correct,
		Points:        pts,
	}

	events := []Event{{
		Type:          EvtAnswerAccepted,
		ParticipantID: cmd.ParticipantID,
		QuestionIndex: cmd.QuestionIndex,
		Answered:      len(newState.Submissions),
		Total:         eligibleCount(newState),
	}}
	return events, newState, nil
}

func applyPause(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.ParticipantID != s.HostID {
		return nil, s, ErrNotHost
	}
	switch s.Status {
	case StatusCompleted:
		return nil, s, ErrSessionClosed
	case StatusWaiting:
		return nil, s, ErrNotStarted
	case StatusPaused:
		return nil, s, ErrSessionPaused
	}

	newState := s
	newState.Status = StatusPaused
	newState.Remaining = s.Deadline.Sub(now)
	if newState.Remaining < 0 {
		newState.Remaining = 0
	}

	events := []Event{{
		Type:      EvtGamePaused,
		Remaining: newState.Remaining,
	}}
	return events, newState, nil
}

func applyResume(s State, cmd Command, now time.Time) ([]Event, State, error) {
	if cmd.ParticipantID != s.HostID {
		return nil, s, ErrNotHost
	}
	if s.Status == StatusCompleted {
		return nil, s, ErrSessionClosed
	}
	if s.Status != StatusPaused {
		return nil, s, ErrNotPaused
	}

	newState := s
	newState.Status = StatusInProgress
	newState.Deadline = now.Add(s.Remaining)
	newState.Remaining = 0

	events := []Event{{
		Type:          EvtGameResumed,
		QuestionIndex: newState.Round,
		Gen:           newState.Gen,
		Deadline:      newState.Deadline,
	}}
	return events, newState, nil
}

func applyClose(s State, cmd Command, now time.Time) ([]Event, State, error) {
	switch s.Status {
	case StatusCompleted:
		return nil, s, ErrSessionClosed
	case StatusWaiting:
		return nil, s, ErrNotStarted
	case StatusPaused:
		return nil, s, ErrSessionPaused
	}
	if cmd.Forced && cmd.ParticipantID != s.HostID {
		return nil, s, ErrNotHost
	}
	if cmd.Gen != s.Gen {
		return nil, s, ErrStaleGeneration
	}

	newState := s
	for id, sub := range s.Submissions {
		newState.Scores.Add(id, s.Round, sub.Points)
	}
	for i := range newState.Roster {
		newState.Roster[i].Score = newState.Scores.Total(newState.Roster[i].ID)
	}

	q := s.Questions[s.Round]
	standings := standingsOf(newState)
	events := []Event{{
		Type:          EvtRoundClosed,
		QuestionIndex: s.Round,
		Gen:           s.Gen,
		CorrectAnswer: q.Answer.Canonical(),
		Standings:     standings,
	}}

	if s.Round+1 == len(s.Questions) {
		newState.Status = StatusCompleted
		newState.EndedAt = now
		events = append(events, Event{
			Type:      EvtGameCompleted,
			Standings: standings,
		})
		return events, newState, nil
	}

	newState.Round++
	newState.Gen++
	newState.Deadline = now.Add(s.PerQuestion)
	newState.Submissions = map[string]Submission{}
	events = append(events, Event{
		Type:          EvtRoundStarted,
		QuestionIndex: newState.Round,
		Gen:           newState.Gen,
		Deadline:      newState.Deadline,
	})
	return events, newState, nil
}

func scorePoints(correct bool, remaining, total time.Duration) int {
	if !correct {
		return 0
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}
	pts := int(int64(BasePoints) * remaining.Milliseconds() / total.Milliseconds())
	if pts < 1 {
		pts = 1
	}
	return pts
}

func findParticipant(s State, id string) (Participant, bool) {
	for _, p := range s.Roster {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// eligibleCount is the number of roster members allowed to answer the current
// round. Late joiners waiting on the next boundary don't count toward the
// all-submitted close condition.
func eligibleCount(s State) int {
	n := 0
	for _, p := range s.Roster {
		if p.EligibleFrom <= s.Round {
			n++
		}
	}
	return n
}

func standingsOf(s State) []Standing {
	names := make(map[string]string, len(s.Roster))
	for _, p := range s.Roster {
		names[p.ID] = p.DisplayName
	}

	entries := s.Scores.Standings()
	out := make([]Standing, 0, len(entries))
	for _, e := range entries {
		out = append(out, Standing{
			ParticipantID: e.ID,
			DisplayName:   names[e.ID],
			Score:         e.Score,
			Rank:          e.Rank,
		})
	}
	return out
}
