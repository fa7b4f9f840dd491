package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			ID:      uint(i + 1),
			Text:    fmt.Sprintf("question %d", i+1),
			Type:    QuestionMultipleChoice,
			Options: []string{"Paris", "London", "Rome", "Berlin"},
			Answer:  Exact("Paris"),
		}
	}
	return qs
}

// startedSession returns a two-player session already in its first round.
func startedSession(t *testing.T, rounds int) State {
	t.Helper()
	s := New("ABC123", "host-1", ModeGeneral, testQuestions(rounds), 30*time.Second, t0)

	var err error
	for _, id := range []string{"host-1", "player-a", "player-b"} {
		_, s, err = Apply(s, Command{Type: CmdJoin, ParticipantID: id, DisplayName: id}, t0)
		if err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	_, s, err = Apply(s, Command{Type: CmdStart, ParticipantID: "host-1"}, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestJoinIsIdempotent(t *testing.T) {
	s := New("ABC123", "host-1", ModeGeneral, testQuestions(3), 30*time.Second, t0)

	events, s, err := Apply(s, Command{Type: CmdJoin, ParticipantID: "player-a", DisplayName: "Alice"}, t0)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if len(events) != 1 || events[0].Type != EvtPlayerJoined {
		t.Fatalf("first join: want one PlayerJoined event, got %+v", events)
	}

	events, s, err = Apply(s, Command{Type: CmdJoin, ParticipantID: "player-a", DisplayName: "Alice2"}, t0)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("second join: want no events, got %+v", events)
	}
	if len(s.Roster) != 1 {
		t.Fatalf("roster size changed on duplicate join: %d", len(s.Roster))
	}
	if s.Roster[0].DisplayName != "Alice" {
		t.Fatalf("duplicate join overwrote display name: %q", s.Roster[0].DisplayName)
	}
}

func TestStartValidation(t *testing.T) {
	s := New("ABC123", "host-1", ModeGeneral, testQuestions(3), 30*time.Second, t0)

	if _, _, err := Apply(s, Command{Type: CmdStart, ParticipantID: "not-host"}, t0); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host start: want ErrNotHost, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdStart, ParticipantID: "host-1"}, t0); !errors.Is(err, ErrEmptyRoster) {
		t.Fatalf("empty roster start: want ErrEmptyRoster, got %v", err)
	}

	_, s, _ = Apply(s, Command{Type: CmdJoin, ParticipantID: "player-a", DisplayName: "A"}, t0)
	events, s, err := Apply(s, Command{Type: CmdStart, ParticipantID: "host-1"}, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != StatusInProgress || s.Gen != 1 {
		t.Fatalf("after start: status=%v gen=%d", s.Status, s.Gen)
	}
	if want := t0.Add(30 * time.Second); !s.Deadline.Equal(want) {
		t.Fatalf("deadline: want %v, got %v", want, s.Deadline)
	}
	if len(events) != 1 || events[0].Type != EvtRoundStarted || events[0].QuestionIndex != 0 {
		t.Fatalf("start events: %+v", events)
	}

	if _, _, err := Apply(s, Command{Type: CmdStart, ParticipantID: "host-1"}, t0); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("double start: want ErrAlreadyStarted, got %v", err)
	}
}

func TestSubmitScoring(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		at     time.Time
		want   int
	}{
		{name: "correct with full window", answer: "Paris", at: t0, want: BasePoints},
		{name: "correct case-insensitive with spaces", answer: "  paris ", at: t0, want: BasePoints},
		{name: "correct at 25 of 30 seconds left", answer: "paris", at: t0.Add(5 * time.Second), want: 83},
		{name: "correct at the wire floors to one", answer: "Paris", at: t0.Add(30*time.Second - time.Millisecond), want: 1},
		{name: "incorrect is zero", answer: "London", at: t0, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := startedSession(t, 3)
			events, _, err := Apply(s, Command{
				Type:          CmdSubmitAnswer,
				ParticipantID: "player-a",
				QuestionIndex: 0,
				Answer:        tc.answer,
			}, tc.at)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			if len(events) != 1 || events[0].Type != EvtAnswerAccepted {
				t.Fatalf("events: %+v", events)
			}
		})
	}

	// Points only land in totals at round close; check via close standings.
	for _, tc := range cases {
		t.Run(tc.name+"/after close", func(t *testing.T) {
			s := startedSession(t, 3)
			_, s, err := Apply(s, Command{
				Type:          CmdSubmitAnswer,
				ParticipantID: "player-a",
				QuestionIndex: 0,
				Answer:        tc.answer,
			}, tc.at)
			if err != nil {
				t.Fatalf("submit: %v", err)
			}
			_, s, err = Apply(s, Command{Type: CmdCloseRound, Gen: s.Gen}, t0.Add(30*time.Second))
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if got := s.Scores.Total("player-a"); got != tc.want {
				t.Fatalf("score: want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestSubmitRejections(t *testing.T) {
	s := startedSession(t, 3)

	cases := []struct {
		name    string
		setup   func(State) State
		cmd     Command
		at      time.Time
		wantErr error
	}{
		{
			name:    "wrong question index",
			cmd:     Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 1, Answer: "Paris"},
			at:      t0,
			wantErr: ErrStaleSubmission,
		},
		{
			name:    "after deadline",
			cmd:     Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 0, Answer: "Paris"},
			at:      t0.Add(31 * time.Second),
			wantErr: ErrStaleSubmission,
		},
		{
			name:    "unknown participant",
			cmd:     Command{Type: CmdSubmitAnswer, ParticipantID: "stranger", QuestionIndex: 0, Answer: "Paris"},
			at:      t0,
			wantErr: ErrUnknownParticipant,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(s, tc.cmd, tc.at)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	s := startedSession(t, 3)

	_, s, err := Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 0, Answer: "Paris"}, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, _, err = Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 0, Answer: "London"}, t0.Add(2*time.Second))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("want ErrDuplicateSubmission, got %v", err)
	}
	// First answer stands.
	if sub := s.Submissions["player-a"]; sub.Raw != "Paris" {
		t.Fatalf("later submission overwrote the first: %+v", sub)
	}
}

func TestCloseRoundAdvancesAndCompletes(t *testing.T) {
	s := startedSession(t, 2)

	events, s, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1}, t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("close round 0: %v", err)
	}
	if s.Round != 1 || s.Gen != 2 || s.Status != StatusInProgress {
		t.Fatalf("after close: round=%d gen=%d status=%v", s.Round, s.Gen, s.Status)
	}
	if !containsEvent(events, EvtRoundClosed) || !containsEvent(events, EvtRoundStarted) {
		t.Fatalf("close events: %+v", events)
	}

	events, s, err = Apply(s, Command{Type: CmdCloseRound, Gen: 2}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("close round 1: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Fatalf("after last close: status=%v", s.Status)
	}
	if !containsEvent(events, EvtGameCompleted) {
		t.Fatalf("final close events: %+v", events)
	}
	if s.EndedAt.IsZero() {
		t.Fatalf("EndedAt not set")
	}

	if _, _, err := Apply(s, Command{Type: CmdCloseRound, Gen: 2}, t0.Add(time.Minute)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("close after completed: want ErrSessionClosed, got %v", err)
	}
}

func TestCloseRoundStaleGeneration(t *testing.T) {
	s := startedSession(t, 3)

	_, s, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1}, t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// The old round's timer firing late must not close the new round.
	_, after, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1}, t0.Add(31*time.Second))
	if !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("want ErrStaleGeneration, got %v", err)
	}
	if after.Round != s.Round {
		t.Fatalf("stale close advanced the round")
	}
}

func TestForcedCloseRequiresHost(t *testing.T) {
	s := startedSession(t, 3)

	if _, _, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1, Forced: true, ParticipantID: "player-a"}, t0); !errors.Is(err, ErrNotHost) {
		t.Fatalf("want ErrNotHost, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1, Forced: true, ParticipantID: "host-1"}, t0); err != nil {
		t.Fatalf("host force close: %v", err)
	}
}

func TestPauseFreezesCountdown(t *testing.T) {
	s := startedSession(t, 3)

	// Pause 10s in: 20s should remain.
	events, s, err := Apply(s, Command{Type: CmdPause, ParticipantID: "host-1"}, t0.Add(10*time.Second))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if s.Status != StatusPaused || s.Remaining != 20*time.Second {
		t.Fatalf("after pause: status=%v remaining=%v", s.Status, s.Remaining)
	}
	if !containsEvent(events, EvtGamePaused) {
		t.Fatalf("pause events: %+v", events)
	}

	if _, _, err := Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 0, Answer: "Paris"}, t0.Add(11*time.Second)); !errors.Is(err, ErrSessionPaused) {
		t.Fatalf("submit while paused: want ErrSessionPaused, got %v", err)
	}

	// Resume five minutes later; the deadline picks up the frozen 20s.
	resumeAt := t0.Add(5 * time.Minute)
	_, s, err = Apply(s, Command{Type: CmdResume, ParticipantID: "host-1"}, resumeAt)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if want := resumeAt.Add(20 * time.Second); !s.Deadline.Equal(want) {
		t.Fatalf("resumed deadline: want %v, got %v", want, s.Deadline)
	}
	if s.Gen != 1 {
		t.Fatalf("resume changed the round generation: %d", s.Gen)
	}
}

func TestLateJoinerSitsOutCurrentRound(t *testing.T) {
	s := startedSession(t, 3)

	_, s, err := Apply(s, Command{Type: CmdJoin, ParticipantID: "late", DisplayName: "Late"}, t0.Add(5*time.Second))
	if err != nil {
		t.Fatalf("late join: %v", err)
	}

	if _, _, err := Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "late", QuestionIndex: 0, Answer: "Paris"}, t0.Add(6*time.Second)); !errors.Is(err, ErrStaleSubmission) {
		t.Fatalf("ineligible submit: want ErrStaleSubmission, got %v", err)
	}

	// The all-submitted count ignores the late joiner for this round.
	var ev []Event
	for _, id := range []string{"host-1", "player-a", "player-b"} {
		ev, s, err = Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: id, QuestionIndex: 0, Answer: "Paris"}, t0.Add(10*time.Second))
		if err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	if ev[0].Answered != 3 || ev[0].Total != 3 {
		t.Fatalf("count: answered=%d total=%d", ev[0].Answered, ev[0].Total)
	}

	// Next round the late joiner is in.
	_, s, err = Apply(s, Command{Type: CmdCloseRound, Gen: 1}, t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "late", QuestionIndex: 1, Answer: "Paris"}, t0.Add(35*time.Second)); err != nil {
		t.Fatalf("eligible submit next round: %v", err)
	}
}

// Spec-style walkthrough: 3 rounds, A answers fast, B never answers.
func TestRoundScenario(t *testing.T) {
	s := New("XYZ789", "host-1", ModeGeneral, testQuestions(3), 30*time.Second, t0)
	var err error
	for _, id := range []string{"player-a", "player-b"} {
		_, s, err = Apply(s, Command{Type: CmdJoin, ParticipantID: id, DisplayName: id}, t0)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	_, s, err = Apply(s, Command{Type: CmdStart, ParticipantID: "host-1"}, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	_, s, err = Apply(s, Command{Type: CmdSubmitAnswer, ParticipantID: "player-a", QuestionIndex: 0, Answer: "paris"}, t0.Add(5*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	events, s, err := Apply(s, Command{Type: CmdCloseRound, Gen: 1}, t0.Add(30*time.Second))
	if err != nil {
		t.Fatalf("timer close: %v", err)
	}

	a, b := s.Scores.Total("player-a"), s.Scores.Total("player-b")
	if a <= 0 || a >= BasePoints {
		t.Fatalf("player-a score: want 0 < score < %d, got %d", BasePoints, a)
	}
	if b != 0 {
		t.Fatalf("player-b score: want 0, got %d", b)
	}
	if s.Round != 1 {
		t.Fatalf("round index: want 1, got %d", s.Round)
	}

	closed := events[0]
	if closed.Type != EvtRoundClosed || closed.CorrectAnswer != "Paris" {
		t.Fatalf("round closed event: %+v", closed)
	}
	if closed.Standings[0].ParticipantID != "player-a" || closed.Standings[0].Rank != 1 {
		t.Fatalf("standings: %+v", closed.Standings)
	}
}

func TestAnswerKeyVariants(t *testing.T) {
	cases := []struct {
		name string
		key  AnswerKey
		raw  string
		want bool
	}{
		{"exact match", Exact("True"), "true", true},
		{"exact mismatch", Exact("True"), "false", false},
		{"any-of hit", AnyOf("color", "colour"), " COLOUR ", true},
		{"any-of miss", AnyOf("color", "colour"), "hue", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.key.Matches(tc.raw); got != tc.want {
				t.Fatalf("Matches(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}

	if got := AnyOf("color", "colour").Canonical(); got != "color / colour" {
		t.Fatalf("Canonical: %q", got)
	}
}

func containsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
