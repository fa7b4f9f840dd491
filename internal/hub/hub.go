package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mRedzuan451/quiz-game-backend/internal/engine"
	"github.com/mRedzuan451/quiz-game-backend/internal/session"
)

type HubMsg interface{ isHubMsg() }

type CreateSession struct {
	Code  string
	State engine.State
	Reply chan *session.Session
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

type RemoveSession struct {
	Code string
}

type ShutdownHub struct{}

type sweep struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}
func (sweep) isHubMsg()         {}

type Config struct {
	Results session.Results
	Logger  *zap.Logger
	// TTL is how long a Waiting session with no connected clients (or a
	// Completed one) survives before the sweep removes it.
	TTL        time.Duration
	SweepEvery time.Duration
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	created  map[string]time.Time
	cfg      Config
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		created:  make(map[string]time.Time),
		cfg:      cfg,
		log:      cfg.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// SessionCodeExists reports whether a code is taken; the game code generator
// checks here before handing out a new one.
func (h *Hub) SessionCodeExists(code string) bool {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- GetSession{Code: code, Reply: reply}:
	case <-h.ctx.Done():
		return false
	}
	select {
	case s := <-reply:
		return s != nil
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) loop() {
	ticker := time.NewTicker(h.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case <-ticker.C:
			h.expireStale()

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if sess := h.sessions[msg.Code]; sess != nil {
					msg.Reply <- sess
					break
				}
				sess := session.NewSession(h.ctx, msg.State, h.cfg.Results, h.cfg.Logger.Named("session"))
				h.sessions[msg.Code] = sess
				h.created[msg.Code] = time.Now()
				h.log.Info("session created",
					zap.String("code", msg.Code),
					zap.Int("active", len(h.sessions)))
				msg.Reply <- sess

			case GetSession:
				msg.Reply <- h.sessions[msg.Code] // May be nil

			case RemoveSession:
				h.remove(msg.Code)

			case sweep:
				h.expireStale()

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) remove(code string) {
	sess := h.sessions[code]
	if sess == nil {
		return
	}
	sess.Inbox() <- session.Shutdown{}
	delete(h.sessions, code)
	delete(h.created, code)
	h.log.Info("session removed", zap.String("code", code))
}

// expireStale removes Waiting sessions nobody is connected to and Completed
// sessions, once they outlive the TTL. In-progress games are never swept.
func (h *Hub) expireStale() {
	now := time.Now()
	for code, sess := range h.sessions {
		if now.Sub(h.created[code]) < h.cfg.TTL {
			continue
		}

		reply := make(chan session.View, 1)
		sess.Inbox() <- session.GetState{Reply: reply}

		var view session.View
		select {
		case view = <-reply:
		case <-time.After(time.Second):
			continue
		}

		switch view.State.Status {
		case engine.StatusWaiting:
			if view.NumClients == 0 {
				h.remove(code)
			}
		case engine.StatusCompleted:
			h.remove(code)
		}
	}
}

func (h *Hub) shutdown() {
	for code, sess := range h.sessions {
		sess.Inbox() <- session.Shutdown{}
		delete(h.sessions, code)
		delete(h.created, code)
	}
	h.cancel()
}
