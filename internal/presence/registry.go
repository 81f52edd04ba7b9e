// Package presence maps live connections to authenticated sessions and
// answers the fan-out questions: who is online, which connections belong
// to an identity, and who receives a broadcast.
package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatmate/chatmate/internal/model"
)

// Session binds one live connection to one authenticated identity.
// An identity may hold several sessions at once (one per device).
type Session struct {
	Conn        model.ConnID
	Username    string
	Email       string
	AvatarColor string
	JoinedAt    time.Time
}

// Registry tracks attached sessions. The forward map (connection ->
// session) and the reverse index (username -> connections) are always
// updated together under one lock, so no caller can observe one without
// the other.
type Registry struct {
	mu      sync.RWMutex
	forward map[model.ConnID]*Session
	reverse map[string]map[model.ConnID]struct{}
	order   []model.ConnID // attach order, keeps ListOnline deterministic

	logger *slog.Logger
}

// NewRegistry creates an empty presence registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		forward: make(map[model.ConnID]*Session),
		reverse: make(map[string]map[model.ConnID]struct{}),
		logger:  logger.With(slog.String("component", "presence")),
	}
}

// Attach installs a session for a connection. A connection may hold at
// most one session; a second attach fails with ErrAlreadyAttached.
func (r *Registry) Attach(session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.forward[session.Conn]; ok {
		return model.ErrAlreadyAttached
	}

	r.forward[session.Conn] = session
	conns, ok := r.reverse[session.Username]
	if !ok {
		conns = make(map[model.ConnID]struct{})
		r.reverse[session.Username] = conns
	}
	conns[session.Conn] = struct{}{}
	r.order = append(r.order, session.Conn)

	r.logger.Info("session attached",
		slog.String("conn", string(session.Conn)),
		slog.String("username", session.Username),
		slog.Int("online", len(r.forward)))
	return nil
}

// Detach removes a connection's session and returns it. Detaching an
// unattached connection returns nil; duplicate disconnect signals are
// harmless.
func (r *Registry) Detach(conn model.ConnID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.forward[conn]
	if !ok {
		return nil
	}

	delete(r.forward, conn)
	if conns, ok := r.reverse[session.Username]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.reverse, session.Username)
		}
	}
	for i, c := range r.order {
		if c == conn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("session detached",
		slog.String("conn", string(conn)),
		slog.String("username", session.Username),
		slog.Int("online", len(r.forward)))
	return session
}

// Lookup returns the session for a connection, or nil when the
// connection is unauthenticated.
func (r *Registry) Lookup(conn model.ConnID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forward[conn]
}

// ConnectionsFor returns every live connection of an identity. An empty
// result means the identity is not currently online.
func (r *Registry) ConnectionsFor(username string) []model.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]model.ConnID, 0, len(r.reverse[username]))
	for conn := range r.reverse[username] {
		conns = append(conns, conn)
	}
	return conns
}

// ListOnline snapshots all attached sessions in attach order
func (r *Registry) ListOnline() []model.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.OnlineUser, 0, len(r.order))
	for _, conn := range r.order {
		session := r.forward[conn]
		users = append(users, model.OnlineUser{
			Username:    session.Username,
			AvatarColor: session.AvatarColor,
		})
	}
	return users
}

// BroadcastTargets returns all attached connections, optionally
// excluding one (pass the zero ConnID to exclude none).
func (r *Registry) BroadcastTargets(excluding model.ConnID) []model.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]model.ConnID, 0, len(r.order))
	for _, conn := range r.order {
		if conn == excluding {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of attached sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forward)
}

// reverseSize is the total membership across the reverse index,
// exposed for invariant checks in tests.
func (r *Registry) reverseSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.reverse {
		total += len(conns)
	}
	return total
}
