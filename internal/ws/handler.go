package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
	"github.com/mRedzuan451/quiz-game-backend/internal/hub"
	"github.com/mRedzuan451/quiz-game-backend/internal/session"
	"github.com/mRedzuan451/quiz-game-backend/internal/types"
)

// NameResolver looks up a registered user's display name; guests resolve to
// a not-found error and keep the name they sent.
type NameResolver interface {
	ResolveDisplayName(ctx context.Context, identity string) (string, error)
}

// A connection gets this many malformed frames before it is dropped.
const maxBadFrames = 3

func Handler(h *hub.Hub, rt *Router, names NameResolver, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		defer rt.Unbind(connID)

		var (
			sess     *session.Session
			out      chan types.ServerMessage
			badCount int
		)
		defer func() {
			if b, ok := rt.Lookup(connID); ok && sess != nil {
				// Non-blocking: the session may already be shut down.
				select {
				case sess.Inbox() <- session.Leave{Identity: b.Identity, Outbox: out}:
				default:
				}
			}
		}()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (session.Leave in defer):
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				badCount++
				writeFrame(writeCtx, conn, types.ErrorFrame(types.KindBadFrame, "bad json"))
				if badCount >= maxBadFrames {
					conn.Close(websocket.StatusPolicyViolation, "too many malformed frames")
					return
				}
				continue
			}

			if cm.Type == types.MsgJoin {
				joined, errFrame := handleJoin(r.Context(), h, rt, names, connID, cm)
				if errFrame != nil {
					writeFrame(writeCtx, conn, *errFrame)
					continue
				}
				sess = joined.sess
				out = joined.out
				go writer(writeCtx, conn, out)
				log.Info("connection joined",
					zap.String("code", cm.Code),
					zap.String("identity", cm.Identity))
				continue
			}

			b, ok := rt.Lookup(connID)
			if !ok {
				writeFrame(writeCtx, conn, types.ErrorFrame(types.KindNotInSession, "join a game first"))
				continue
			}

			cmd, ok := toCommand(cm)
			if !ok {
				badCount++
				writeFrame(writeCtx, conn, types.ErrorFrame(types.KindBadFrame, "unknown type"))
				if badCount >= maxBadFrames {
					conn.Close(websocket.StatusPolicyViolation, "too many malformed frames")
					return
				}
				continue
			}

			sess.Inbox() <- session.FromClient{Identity: b.Identity, Cmd: cmd}
		}
	}
}

type joinResult struct {
	sess *session.Session
	out  chan types.ServerMessage
}

func handleJoin(ctx context.Context, h *hub.Hub, rt *Router, names NameResolver, connID string, cm types.ClientMessage) (joinResult, *types.ServerMessage) {
	if cm.Identity == "" {
		f := types.ErrorFrame(types.KindInvalidIdentity, "identity is required")
		return joinResult{}, &f
	}
	if _, bound := rt.Lookup(connID); bound {
		f := types.ErrorFrame(types.KindBadFrame, "already joined")
		return joinResult{}, &f
	}

	reply := make(chan *session.Session, 1)
	h.Inbox() <- hub.GetSession{Code: cm.Code, Reply: reply}
	sess := <-reply
	if sess == nil {
		f := types.ErrorFrame(types.KindSessionNotFound, "no game with that code")
		return joinResult{}, &f
	}

	name := cm.DisplayName
	if name == "" {
		resolved, err := names.ResolveDisplayName(ctx, cm.Identity)
		if err != nil {
			f := types.ErrorFrame(types.KindDependency, "display name lookup failed")
			return joinResult{}, &f
		}
		name = resolved
	}
	if name == "" {
		name = cm.Identity
	}

	out := make(chan types.ServerMessage, 16)
	errReply := make(chan error, 1)
	sess.Inbox() <- session.Join{
		Identity:    cm.Identity,
		DisplayName: name,
		Outbox:      out,
		Reply:       errReply,
	}
	if err := <-errReply; err != nil {
		f := types.ErrorFrame(types.KindOf(err), err.Error())
		return joinResult{}, &f
	}

	rt.Bind(connID, cm.Code, cm.Identity)
	return joinResult{sess: sess, out: out}, nil
}

// writer drains the session outbox onto the socket. The session closes the
// outbox on leave, drop or shutdown; closing the conn afterwards unblocks
// the reader too.
func writer(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage) {
	for frame := range out {
		writeFrame(ctx, conn, frame)
	}
	conn.Close(websocket.StatusGoingAway, "session closed")
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame types.ServerMessage) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func toCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case types.MsgSubmitAnswer:
		return engine.Command{
			Type:          engine.CmdSubmitAnswer,
			QuestionIndex: m.QuestionIndex,
			Answer:        m.Answer,
		}, true
	case types.MsgHostStart:
		return engine.Command{Type: engine.CmdStart}, true
	case types.MsgHostPause:
		return engine.Command{Type: engine.CmdPause}, true
	case types.MsgHostResume:
		return engine.Command{Type: engine.CmdResume}, true
	case types.MsgHostCloseRound:
		return engine.Command{Type: engine.CmdCloseRound}, true
	default:
		return engine.Command{}, false
	}
}
