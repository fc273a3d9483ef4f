package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Handle identifies a registered connection.
type Handle string

type entry struct {
	conn Conn
	info ConnInfo
}

// Registry tracks live connections keyed by opaque handle. Pure
// bookkeeping; it never touches the network itself.
type Registry struct {
	mu    sync.RWMutex
	conns map[Handle]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[Handle]entry)}
}

// Register adds a connection and returns its handle.
func (r *Registry) Register(conn Conn, info ConnInfo) Handle {
	h := Handle(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[h] = entry{conn: conn, info: info}
	return h
}

// Unregister removes a connection. Unknown handles are a no-op so
// cleanup paths can run unconditionally.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, h)
}

// Get returns the connection and info for a handle.
func (r *Registry) Get(h Handle) (Conn, ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[h]
	return e.conn, e.info, ok
}

// Len reports the live connection count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ForEach visits a snapshot of the registry. Visitors may unregister
// handles; they never observe a map mutated mid-iteration.
func (r *Registry) ForEach(visit func(h Handle, conn Conn, info ConnInfo)) {
	r.mu.RLock()
	snapshot := make(map[Handle]entry, len(r.conns))
	for h, e := range r.conns {
		snapshot[h] = e
	}
	r.mu.RUnlock()

	for h, e := range snapshot {
		visit(h, e.conn, e.info)
	}
}
