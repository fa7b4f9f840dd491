package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
	"github.com/mRedzuan451/quiz-game-backend/internal/types"
)

// Results is the persistence collaborator receiving final standings once a
// game completes.
type Results interface {
	PersistGameResult(ctx context.Context, code, hostID string, standings []engine.Standing) error
}

type Msg interface{ isSessionMsg() }

// Join admits (or re-attaches) a participant and registers its outbox for
// broadcasts. Reply carries the admission error, nil on success.
type Join struct {
	Identity    string
	DisplayName string
	Outbox      chan types.ServerMessage
	Reply       chan error
}

func (Join) isSessionMsg() {}

// Leave detaches a connection. The roster is untouched; only the outbox
// registration is dropped, and only if it still belongs to this connection
// (a reconnect may have replaced it already).
type Leave struct {
	Identity string
	Outbox   chan types.ServerMessage
}

func (Leave) isSessionMsg() {}

type FromClient struct {
	Identity string
	Cmd      engine.Command
}

func (FromClient) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

// timerFired is the round deadline trigger. It carries the generation the
// timer was armed for; the engine drops it if that round already closed.
type timerFired struct{ gen int }

func (timerFired) isSessionMsg() {}

type persistDone struct {
	gen int
	err error
}

func (persistDone) isSessionMsg() {}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Session struct {
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan types.ServerMessage
	timer   *time.Timer
	results Results
	log     *zap.Logger

	// Finalize bookkeeping: the Completed state is committed only after the
	// results store acknowledges the persist, so a dependency failure leaves
	// the session InProgress and the host can retry the close.
	persistInFlight bool
	pendingState    *engine.State
	pendingFinal    []engine.Standing

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSession(parent context.Context, initial engine.State, results Results, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan types.ServerMessage),
		results: results,
		log:     log.With(zap.String("code", initial.Code)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)

			case Leave:
				if ch, ok := s.clients[msg.Identity]; ok && ch == msg.Outbox {
					delete(s.clients, msg.Identity)
					close(ch)
				}

			case FromClient:
				cmd := msg.Cmd
				cmd.ParticipantID = msg.Identity
				if cmd.Type == engine.CmdCloseRound {
					// Host force-close targets whatever round is current.
					cmd.Gen = s.state.Gen
					cmd.Forced = true
				}
				s.apply(cmd, msg.Identity)

			case timerFired:
				s.apply(engine.Command{Type: engine.CmdCloseRound, Gen: msg.gen}, "")

			case persistDone:
				s.handlePersistDone(msg)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					State:      s.state,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) handleJoin(msg Join) {
	// The game is effectively over once the final persist is in flight; a
	// join landing now would be lost when the Completed state commits.
	if s.persistInFlight {
		msg.Reply <- engine.ErrSessionClosed
		return
	}

	events, newState, err := engine.Apply(s.state, engine.Command{
		Type:          engine.CmdJoin,
		ParticipantID: msg.Identity,
		DisplayName:   msg.DisplayName,
	}, time.Now())
	if err != nil {
		msg.Reply <- err
		return
	}

	s.state = newState
	s.version++

	// A reconnect replaces the old outbox; close it so the stale writer
	// goroutine winds down.
	if old, ok := s.clients[msg.Identity]; ok && old != msg.Outbox {
		close(old)
	}
	s.clients[msg.Identity] = msg.Outbox
	msg.Reply <- nil

	snap := types.SnapshotOf(s.state)
	msg.Outbox <- types.ServerMessage{Type: types.MsgStateSnapshot, Snapshot: &snap}

	s.dispatch(events)
	if len(events) > 0 {
		s.log.Info("participant joined",
			zap.String("identity", msg.Identity),
			zap.Int("roster", len(s.state.Roster)))
	}
}

// apply runs one command, commits on success and routes errors back to the
// issuing client only. A completion outcome is held back until the results
// store acknowledges the persist.
func (s *Session) apply(cmd engine.Command, from string) {
	events, newState, err := engine.Apply(s.state, cmd, time.Now())
	if err != nil {
		if from != "" {
			s.sendTo(from, types.ErrorFrame(types.KindOf(err), err.Error()))
		}
		return
	}

	if completed := findEvent(events, engine.EvtGameCompleted); completed != nil {
		s.beginFinalize(events, newState, completed.Standings, from)
		return
	}

	s.state = newState
	s.version++
	s.dispatch(events)
}

func (s *Session) dispatch(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtPlayerJoined:
			s.broadcast(types.ServerMessage{Type: types.MsgPlayerJoined, Player: &types.PlayerJoined{
				Identity:    ev.ParticipantID,
				DisplayName: ev.DisplayName,
				Roster:      types.RosterOf(s.state),
			}})

		case engine.EvtRoundStarted:
			s.armTimer(ev.Deadline, ev.Gen)
			q := types.QuestionFor(s.state, ev.QuestionIndex)
			s.broadcast(types.ServerMessage{Type: types.MsgRoundStarted, Round: &types.RoundStarted{
				QuestionIndex: ev.QuestionIndex,
				Question:      q,
				Deadline:      ev.Deadline,
			}})

		case engine.EvtAnswerAccepted:
			s.broadcast(types.ServerMessage{Type: types.MsgSubmissionCount, Count: &types.SubmissionCount{
				QuestionIndex: ev.QuestionIndex,
				Answered:      ev.Answered,
				Total:         ev.Total,
			}})
			if ev.Answered >= ev.Total {
				// Everyone in: close now instead of waiting out the clock.
				s.apply(engine.Command{Type: engine.CmdCloseRound, Gen: s.state.Gen}, "")
			}

		case engine.EvtRoundClosed:
			s.stopTimer()
			s.broadcast(types.ServerMessage{Type: types.MsgRoundResult, Result: &types.RoundResult{
				QuestionIndex: ev.QuestionIndex,
				CorrectAnswer: ev.CorrectAnswer,
				Standings:     types.StandingsOf(ev.Standings),
			}})
			s.log.Info("round closed",
				zap.Int("round", ev.QuestionIndex),
				zap.Int("gen", ev.Gen))

		case engine.EvtGamePaused:
			s.stopTimer()
			s.broadcast(types.ServerMessage{Type: types.MsgGamePaused, Paused: &types.GamePaused{
				RemainingMs: ev.Remaining.Milliseconds(),
			}})

		case engine.EvtGameResumed:
			s.armTimer(ev.Deadline, ev.Gen)
			s.broadcast(types.ServerMessage{Type: types.MsgGameResumed, Resumed: &types.GameResumed{
				QuestionIndex: ev.QuestionIndex,
				Deadline:      ev.Deadline,
			}})
		}
	}
}

// beginFinalize broadcasts the last round's result, then hands the standings
// to the results store off the loop. The Completed state commits only when
// the store acknowledges.
func (s *Session) beginFinalize(events []engine.Event, newState engine.State, standings []engine.Standing, from string) {
	if s.persistInFlight {
		if from != "" {
			s.sendTo(from, types.ErrorFrame(types.KindDependency, "finalize already in progress"))
		}
		return
	}

	s.stopTimer()
	if closed := findEvent(events, engine.EvtRoundClosed); closed != nil {
		s.broadcast(types.ServerMessage{Type: types.MsgRoundResult, Result: &types.RoundResult{
			QuestionIndex: closed.QuestionIndex,
			CorrectAnswer: closed.CorrectAnswer,
			Standings:     types.StandingsOf(closed.Standings),
		}})
	}

	s.persistInFlight = true
	s.pendingState = &newState
	s.pendingFinal = standings
	gen := newState.Gen

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		defer cancel()
		err := s.results.PersistGameResult(ctx, newState.Code, newState.HostID, standings)
		select {
		case s.inbox <- persistDone{gen: gen, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) handlePersistDone(msg persistDone) {
	s.persistInFlight = false
	if s.pendingState == nil || msg.gen != s.pendingState.Gen {
		return
	}

	if msg.err != nil {
		// Session stays InProgress at the same round; the host retries via
		// force-close.
		s.pendingState = nil
		s.pendingFinal = nil
		s.log.Error("persist game result failed", zap.Int("gen", msg.gen), zap.Error(msg.err))
		s.sendTo(s.state.HostID, types.ErrorFrame(types.KindDependency, "saving results failed, retry closing the round"))
		return
	}

	s.state = *s.pendingState
	s.version++
	s.state.Scores.Finalize()
	s.broadcast(types.ServerMessage{Type: types.MsgGameCompleted, Completed: &types.GameCompleted{
		FinalStandings: types.StandingsOf(s.pendingFinal),
	}})
	s.log.Info("game completed",
		zap.Int("rounds", len(s.state.Questions)),
		zap.Int("participants", len(s.state.Roster)))
	s.pendingState = nil
	s.pendingFinal = nil
}

func (s *Session) armTimer(deadline time.Time, gen int) {
	s.stopTimer()
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, func() {
		select {
		case s.inbox <- timerFired{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) broadcast(frame types.ServerMessage) {
	for id, ch := range s.clients {
		select {
		case ch <- frame:
			// ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(s.clients, id)
		}
	}
}

func (s *Session) sendTo(identity string, frame types.ServerMessage) {
	ch, ok := s.clients[identity]
	if !ok {
		return
	}
	select {
	case ch <- frame:
	default:
		close(ch)
		delete(s.clients, identity)
	}
}

func (s *Session) shutdown() {
	s.stopTimer()
	for id, ch := range s.clients {
		close(ch) // Tell client no more frames
		delete(s.clients, id)
	}
	s.cancel()
}

func findEvent(events []engine.Event, t engine.EventType) *engine.Event {
	for i := range events {
		if events[i].Type == t {
			return &events[i]
		}
	}
	return nil
}
