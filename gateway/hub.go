// gateway/hub.go
package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	RoleClient       = "client"
	RoleProfessional = "professional"

	outboundQueueSize = 64
	writeTimeout      = 10 * time.Second
)

// conn wraps a websocket with a buffered outbound queue drained by a single
// writer goroutine, so handlers never write to the socket concurrently.
type conn struct {
	ws   *websocket.Conn
	send chan any

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		send: make(chan any, outboundQueueSize),
		done: make(chan struct{}),
	}
}

// writePump drains the outbound queue in FIFO order. It returns when the
// queue closes or a write fails.
func (c *conn) writePump(logger *zap.Logger) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				c.close()
				return
			}
		}
	}
}

// enqueue queues a message for delivery. Messages are dropped if the peer
// cannot keep up, which keeps a slow consumer from blocking everyone else.
func (c *conn) enqueue(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// Hub tracks the live connections attached to each session so messages can be
// forwarded between the client and professional ends.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[string]*conn
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]map[string]*conn),
		logger:   logger,
	}
}

// join registers a connection under a session and role, displacing any
// previous connection for the same role (reconnects win).
func (h *Hub) join(sessionID, role string, c *conn) {
	h.mu.Lock()
	peers, ok := h.sessions[sessionID]
	if !ok {
		peers = make(map[string]*conn, 2)
		h.sessions[sessionID] = peers
	}
	prev := peers[role]
	peers[role] = c
	h.mu.Unlock()

	if prev != nil && prev != c {
		prev.close()
	}
}

// leave removes a connection. The session entry is dropped once both ends
// are gone.
func (h *Hub) leave(sessionID, role string, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if peers[role] == c {
		delete(peers, role)
	}
	if len(peers) == 0 {
		delete(h.sessions, sessionID)
	}
}

// sendTo queues a message for one end of a session. Returns false when that
// end is not connected.
func (h *Hub) sendTo(sessionID, role string, msg any) bool {
	h.mu.Lock()
	var target *conn
	if peers, ok := h.sessions[sessionID]; ok {
		target = peers[role]
	}
	h.mu.Unlock()

	if target == nil {
		return false
	}
	target.enqueue(msg)
	return true
}

// broadcast queues a message for every end of a session.
func (h *Hub) broadcast(sessionID string, msg any) {
	h.mu.Lock()
	targets := make([]*conn, 0, 2)
	for _, c := range h.sessions[sessionID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// peerRole returns the opposite end of a session connection.
func peerRole(role string) string {
	if role == RoleClient {
		return RoleProfessional
	}
	return RoleClient
}
