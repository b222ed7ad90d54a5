// Package ws pushes live session state to WebSocket clients.
package ws

import (
	"context"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/logging"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// StateProviderFunc returns the state of every hosted session as JSON.
type StateProviderFunc func() ([]byte, error)

// Hub manages WebSocket connections and broadcasts messages to all clients.
type Hub struct {
	clients       map[*Client]bool
	broadcast     chan []byte
	register      chan *Client
	unregister    chan *Client
	done          chan struct{}
	logger        *slog.Logger
	mu            sync.RWMutex
	stateProvider StateProviderFunc
	anyOrigin     bool
}

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	send chan []byte
	conn *websocket.Conn
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.Or(logger),
	}
}

// SetStateProvider sets the function called to get current state for new/reconnecting clients.
func (h *Hub) SetStateProvider(fn StateProviderFunc) {
	h.stateProvider = fn
}

// SetDevMode accepts connections from any origin.
func (h *Hub) SetDevMode(dev bool) {
	h.anyOrigin = dev
}

// Run starts the hub's event loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// a client that misses a message is stale; it resyncs on reconnect
					h.logger.Warn("websocket client queue full, disconnecting")
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues a message for every client. When the queue is full the
// message is dropped; callers hold session locks and must not block.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message")
	}
}

// BroadcastPending announces a session's new pending set.
func (h *Hub) BroadcastPending(session, table string, events []schema.Event) {
	h.send(MsgPendingChanged, PendingPayload{Session: session, Table: table, Events: schema.Records(events)})
}

// BroadcastCommitted announces a successful commit.
func (h *Hub) BroadcastCommitted(session, table string, stmts []string) {
	h.send(MsgCommitted, CommittedPayload{Session: session, Table: table, Statements: stmts})
}

// BroadcastSessionClosed announces that a session was closed.
func (h *Hub) BroadcastSessionClosed(session string) {
	h.send(MsgSessionClosed, map[string]string{"session": session})
}

// BroadcastError broadcasts an error to all clients.
func (h *Hub) BroadcastError(errMsg string) {
	h.send(MsgError, map[string]string{"message": errMsg})
}

func (h *Hub) send(typ MessageType, payload any) {
	msg, err := NewMessage(typ, payload)
	if err != nil {
		h.logger.Error("failed to create websocket message", "type", typ, "error", err)
		return
	}
	h.Broadcast(msg)
}

// Observer returns a changeset observer that broadcasts session's pending set.
func (h *Hub) Observer(session string) changeset.Observer {
	return changeset.ObserverFunc(func(table string, events []schema.Event) {
		h.BroadcastPending(session, table, events)
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
