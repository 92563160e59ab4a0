package web

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"go.viam.com/impedance/logging"
	"go.viam.com/impedance/telemetry"
)

// clientBuffer is how many encoded samples may wait for one websocket client. A client that
// falls further behind is dropped.
const clientBuffer = 256

type hubClient struct {
	id   string
	send chan []byte
}

// Hub broadcasts telemetry samples to websocket clients. Publish never blocks; it implements
// telemetry.Publisher.
type Hub struct {
	logger logging.Logger

	mu      sync.Mutex
	clients map[string]*hubClient
	closed  bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub returns a hub with no clients.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: map[string]*hubClient{},
	}
}

// register adds a client. It returns nil once the hub is closed.
func (h *Hub) register() *hubClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &hubClient{id: uuid.NewString(), send: make(chan []byte, clientBuffer)}
	h.clients[c.id] = c
	h.logger.Debugw("telemetry client connected", "client", c.id, "clients", len(h.clients))
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Debugw("telemetry client disconnected", "client", c.id, "clients", len(h.clients))
	}
}

// Publish implements telemetry.Publisher.
func (h *Hub) Publish(s telemetry.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		h.logger.Warnw("failed to encode telemetry sample", "error", err)
		return
	}
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, id)
			close(c.send)
			h.dropped.Inc()
			h.logger.Warnw("dropped slow telemetry client", "client", id)
		}
	}
	h.published.Inc()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many clients were disconnected for falling behind.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Published returns how many samples were encoded for connected clients.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
