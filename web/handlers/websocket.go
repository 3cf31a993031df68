package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/notouch/pkg/types"
)

// MessageTypeState is the WSMessage type carrying a types.UIState.
const MessageTypeState = "state"

// WebSocketHub fans UI state out to WebSocket clients. It implements
// engine.UISink.
type WebSocketHub struct {
	subscribers map[subscriber]struct{}
	outbox      chan []byte
	join        chan subscriber
	leave       chan subscriber
	origins     []string
	mu          sync.RWMutex
	last        []byte // latest state message, replayed to new clients
	ctx         context.Context
	cancel      context.CancelFunc
}

// subscriber is a hub member; real connections and MockClient implement it.
type subscriber interface {
	queue() chan []byte
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *Client) queue() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewWebSocketHub creates a hub accepting browser connections from the given
// origin hosts (for example "localhost:6464"). Requests without an Origin
// header are always accepted.
func NewWebSocketHub(origins ...string) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		subscribers: make(map[subscriber]struct{}),
		outbox:      make(chan []byte, 256),
		join:        make(chan subscriber),
		leave:       make(chan subscriber),
		origins:     origins,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes joins, leaves and outgoing messages until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case sub := <-h.join:
			h.mu.Lock()
			h.subscribers[sub] = struct{}{}
			if h.last != nil {
				h.offer(sub, h.last)
			}
			n := len(h.subscribers)
			h.mu.Unlock()
			log.Printf("handlers: websocket client connected (total: %d)", n)

		case sub := <-h.leave:
			h.mu.Lock()
			h.drop(sub)
			n := len(h.subscribers)
			h.mu.Unlock()
			log.Printf("handlers: websocket client disconnected (total: %d)", n)

		case msg := <-h.outbox:
			h.mu.Lock()
			h.last = msg
			for sub := range h.subscribers {
				h.offer(sub, msg)
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			log.Println("handlers: websocket hub stopping")
			return
		}
	}
}

// offer queues msg for sub, dropping sub when its queue is full.
// The caller holds h.mu.
func (h *WebSocketHub) offer(sub subscriber, msg []byte) {
	select {
	case sub.queue() <- msg:
	default:
		h.drop(sub)
	}
}

// drop removes sub and closes its queue. The caller holds h.mu.
func (h *WebSocketHub) drop(sub subscriber) {
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.queue())
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for sub := range h.subscribers {
		h.drop(sub)
		sub.close()
	}
	h.mu.Unlock()
}

// Publish pushes a UI state to every client. It never blocks.
func (h *WebSocketHub) Publish(state types.UIState) {
	data, err := json.Marshal(WSMessage{Type: MessageTypeState, Data: state})
	if err != nil {
		log.Printf("handlers: ERROR - failed to marshal websocket message: %v", err)
		return
	}

	select {
	case h.outbox <- data:
	default:
		log.Println("handlers: WARNING - websocket outbox full, dropping state")
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Register adds a client to the hub.
func (h *WebSocketHub) Register(sub subscriber) {
	select {
	case h.join <- sub:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(sub subscriber) {
	select {
	case h.leave <- sub:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !h.originAllowed(origin) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.origins,
	})
	if err != nil {
		log.Printf("handlers: ERROR - websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.origins {
		if u.Host == allowed {
			return true
		}
	}
	return false
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			log.Printf("handlers: websocket write failed: %v", err)
			return
		}
	}
}

// readPump drains client messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) queue() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
