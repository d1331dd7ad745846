// Package broadcaster fans the mempool engine's single change-event
// observer slot out to any number of websocket clients. This is the
// concrete instance of the fan-out collaborator the engine's design notes
// call for: "if multiple consumers are needed, a fan-out collaborator owns
// the multiplexing."
package broadcaster

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/branched-services/go-mempoolsync/pkg/mempool"
)

// changeEvent is the wire frame sent to every connected client.
type changeEvent struct {
	CacheSize int      `json:"cacheSize"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
}

// Hub registers itself as the engine's single observer and re-publishes
// every non-empty-diff callback to its connected websocket clients. A slow client is
// dropped rather than allowed to block the pass, matching spec.md §5's
// requirement that the observer must not block long.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub. Call Observer() to obtain the function to pass to
// Engine.SetObserver.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "broadcaster"),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Observer returns the mempool.Observer to register via
// Engine.SetObserver. It ignores the empty-diff seeding callback. ServeHTTP
// sends no initial state on connect: a new websocket client receives only
// the diffs broadcast after it has registered.
func (h *Hub) Observer() mempool.Observer {
	return func(snap *mempool.Snapshot, added, removed []string) {
		if len(added) == 0 && len(removed) == 0 {
			return
		}
		h.broadcast(changeEvent{
			CacheSize: len(snap.Transactions),
			Added:     added,
			Removed:   removed,
		})
	}
}

// ServeHTTP upgrades the connection and registers it as a client until it
// disconnects or its send buffer backs up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(ev changeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshaling change event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
