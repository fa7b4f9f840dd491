package ws

import "sync"

type Binding struct {
	Code     string
	Identity string
}

// Router is the bidirectional index between live connections and
// (session code, participant identity). It is the only record of who a
// connection speaks for; nothing is inferred from transport state. Dropping
// a binding never touches the session roster.
type Router struct {
	mu       sync.RWMutex
	conns    map[string]Binding
	sessions map[string]map[string]struct{}
}

func NewRouter() *Router {
	return &Router{
		conns:    make(map[string]Binding),
		sessions: make(map[string]map[string]struct{}),
	}
}

func (r *Router) Bind(connID, code, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindLocked(connID)
	r.conns[connID] = Binding{Code: code, Identity: identity}
	if r.sessions[code] == nil {
		r.sessions[code] = make(map[string]struct{})
	}
	r.sessions[code][connID] = struct{}{}
}

func (r *Router) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.conns[connID]
	return b, ok
}

func (r *Router) Unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(connID)
}

func (r *Router) unbindLocked(connID string) {
	b, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if set := r.sessions[b.Code]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.sessions, b.Code)
		}
	}
}

// Connections is how many live connections a session has.
func (r *Router) Connections(code string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[code])
}
