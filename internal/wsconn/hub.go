package wsconn

import (
	"sync"
	"sync/atomic"
)

// Stats is the subset of the orchestrator's counters a Hub updates as
// connections register and unregister, mirroring internal/conn.Stats.
type Stats interface {
	AddWebSocketOpened()
	AddWebSocketClosed()
}

// Hub is the connection registry adapted from the teacher's
// core/websocket/hub.go Client/Hub shape: the distilled single-connection
// framing has no notion of "every other open connection", but a
// production WebSocket server always needs one (broadcast, per-process
// active/total counts), and original_source/src/websocket.cpp's handling
// of multiple simultaneous clients assumes exactly this.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	stats Stats

	totalOpened atomic.Uint64
}

// NewHub creates an empty registry. stats may be nil.
func NewHub(stats Stats) *Hub {
	return &Hub{conns: make(map[string]*Conn), stats: stats}
}

// Register adds conn to the registry, keyed by its ID.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	h.totalOpened.Add(1)
	if h.stats != nil {
		h.stats.AddWebSocketOpened()
	}
}

// Unregister removes conn from the registry.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, existed := h.conns[c.ID]
	delete(h.conns, c.ID)
	h.mu.Unlock()
	if existed && h.stats != nil {
		h.stats.AddWebSocketClosed()
	}
}

// Active returns the number of currently registered connections.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// TotalOpened returns the lifetime count of connections ever registered.
func (h *Hub) TotalOpened() uint64 {
	return h.totalOpened.Load()
}

// Broadcast sends message to every currently registered connection, as a
// binary frame if binary is set and a text frame otherwise. Writes happen
// one connection at a time, in no particular order, and a write error on
// one connection is ignored rather than stopping the broadcast.
func (h *Hub) Broadcast(message []byte, binary bool) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if binary {
			_ = c.SendBinary(message)
		} else {
			_ = c.SendText(message)
		}
	}
}
