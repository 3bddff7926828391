package events

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meetcap/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

// WebsocketBroadcaster fans every emitted event out to all currently
// connected websocket clients. This is a thin demo of the host
// application frame's event channel, kept only to exercise the wire
// contract described in the command surface — the real host frame is
// out of scope.
type WebsocketBroadcaster struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
}

// NewWebsocketBroadcaster creates an empty broadcaster.
func NewWebsocketBroadcaster() *WebsocketBroadcaster {
	return &WebsocketBroadcaster{clients: make(map[*wsClient]bool)}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting connection as an event subscriber until it disconnects.
func (b *WebsocketBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn}

	b.mu.Lock()
	b.clients[client] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, client)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Emit implements Emitter, broadcasting ev to every connected client.
// Write failures drop that one client rather than blocking the others.
func (b *WebsocketBroadcaster) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for client := range b.clients {
		if err := client.send(ev); err != nil {
			logging.Warn("dropping unresponsive event subscriber", zap.Error(err))
			delete(b.clients, client)
		}
	}
}
