// Package runtime holds the process-scoped pieces of the delivery path:
// the session registry and the supervised workers consuming the broker.
package runtime

import (
	"log/slog"
	"sync"

	"yappify/contract"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry maps user IDs to their live connections in this process.
// Populated on connect, cleared on disconnect, never persisted. A user
// may hold several simultaneous connections (multiple devices or tabs).
//
// Safe for concurrent use: connect/disconnect handlers mutate it while
// fan-out consumers read it.
type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	sessions map[string][]contract.Connection
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log, sessions: make(map[string][]contract.Connection)}
}

func (r *Registry) Register(userID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = append(r.sessions[userID], conn)
}

// Remove drops one connection of the user. Empty entries are deleted so
// the map does not accumulate offline users over time.
func (r *Registry) Remove(userID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.sessions[userID]
	for i, c := range conns {
		if c == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.sessions, userID)
	} else {
		r.sessions[userID] = conns
	}
}

// Push writes the payload to every live connection of the user.
// Best effort: a failing connection is treated as dead and evicted, and
// the failure never reaches the caller. The write happens outside the
// lock so one slow connection cannot stall connect/disconnect handling.
func (r *Registry) Push(userID string, payload []byte) bool {
	r.mu.RLock()
	conns := append([]contract.Connection(nil), r.sessions[userID]...)
	r.mu.RUnlock()

	delivered := false
	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			r.log.Debug("Evicting dead connection", "userId", userID, "error", err)
			r.Remove(userID, conn)
			continue
		}
		delivered = true
	}
	return delivered
}
