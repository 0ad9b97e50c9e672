// Package hub fans updates out to live duplex connections, keyed by session
// token. Polling clients read the same update log over HTTP; the hub only
// gives WebSocket clients push delivery of the identical envelopes.
package hub

import "sync"

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one participant's live channel into a session.
type Connection struct {
	SessionToken string
	UserID       string
	Writer       Writer
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.SessionToken] == nil {
		h.connections[conn.SessionToken] = make(map[*Connection]struct{})
	}
	h.connections[conn.SessionToken][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.SessionToken]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.SessionToken)
	}
}

// Broadcast writes message to every connection in the session except the
// sender (pass nil to reach everyone). Connections that fail to write are
// closed and dropped.
func (h *Hub) Broadcast(sessionToken string, message []byte, sender *Connection) {
	h.mu.RLock()
	set := h.connections[sessionToken]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		if c != sender {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
