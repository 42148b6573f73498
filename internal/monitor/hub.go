package monitor

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bingo-data/beamscope/internal/engine"
)

// ProgressHub fans accepted engine events out to websocket clients.
// Run must be started before clients connect; HandleWebSocket parks
// registrations on the hub's channels.
type ProgressHub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.Mutex
	connCount  int
}

// NewProgressHub creates a hub with no connected clients.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run consumes the event stream and serves client registrations until
// the context ends or the stream closes. Every event goes to every
// client; a client whose write fails is evicted.
func (h *ProgressHub) Run(ctx context.Context, events <-chan engine.Event) {
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			if _, exists := h.clients[client]; !exists {
				h.clients[client] = true
				h.connCount++
				log.Printf("progress client connected (%d total)", h.connCount)
			}
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.connCount--
				log.Printf("progress client disconnected (%d total)", h.connCount)
				client.Close()
			}
			h.mutex.Unlock()

		case ev, ok := <-events:
			if !ok {
				return
			}
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(ev); err != nil {
					log.Printf("progress client write failed, evicting: %v", err)
					client.Close()
					delete(h.clients, client)
					h.connCount--
				}
			}
			h.mutex.Unlock()
		}
	}
}

// stop closes every client and unblocks handlers parked on the
// registration channels.
func (h *ProgressHub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.connCount = 0
}

// GetConnectedCount returns the number of connected clients.
func (h *ProgressHub) GetConnectedCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.connCount
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The monitor is a trusted-network debug surface.
		return true
	},
}

// HandleWebSocket upgrades the connection and registers it with the hub.
// The stream is one-way; the read pump only detects disconnects.
func (h *ProgressHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "not a websocket upgrade request", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseNormalClosure,
					websocket.CloseAbnormalClosure) {
					log.Printf("progress client read error: %v", err)
				}
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				break
			}
		}
	}()
}
