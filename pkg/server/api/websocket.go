package api

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/epayprotocol/oracle-usdp/pkg/logging"
	"github.com/epayprotocol/oracle-usdp/pkg/server/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	clientBuffer   = 256
	broadcastQueue = 1024
)

// WebSocketHub streams engine events to WebSocket clients. It implements
// engine.EventSink; Publish never blocks the engine.
type WebSocketHub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	events    chan engine.Event
	done      chan struct{}
	closeOnce sync.Once
}

var _ engine.EventSink = (*WebSocketHub)(nil)

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn            *websocket.Conn
	send            chan []byte
	hub             *WebSocketHub
	subscribedAll   bool
	subscribedPairs map[string]bool
	mu              sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type    string   `json:"type"`    // "subscribe", "unsubscribe", "ping"
	Symbols []string `json:"symbols"` // List of symbols to subscribe to
}

// EventMessage is sent to clients for every engine event.
type EventMessage struct {
	Type  string       `json:"type"` // "event"
	Event engine.Event `json:"event"`
}

// NewWebSocketHub creates a hub and starts its broadcast loop.
func NewWebSocketHub(logger *logging.Logger) *WebSocketHub {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	h := &WebSocketHub{
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				// Allow all origins (configure CORS as needed)
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		events:  make(chan engine.Event, broadcastQueue),
		done:    make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish queues an event for broadcast, dropping it if the queue is full.
func (h *WebSocketHub) Publish(ev engine.Event) {
	select {
	case <-h.done:
	case h.events <- ev:
	default:
		h.logger.Warn("Event queue full, dropping event", "kind", string(ev.Kind), "symbol", ev.Symbol)
	}
}

// Close disconnects every client and stops broadcasting.
func (h *WebSocketHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
	})
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and registers the client.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:            conn,
		send:            make(chan []byte, clientBuffer),
		hub:             h,
		subscribedAll:   true, // Subscribe to all by default
		subscribedPairs: make(map[string]bool),
	}

	if !h.registerClient(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	h.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr().String())
}

func (h *WebSocketHub) registerClient(client *WebSocketClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[client] = true
	return true
}

func (h *WebSocketHub) unregisterClient(client *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

// broadcast sends an event to all subscribed clients.
func (h *WebSocketHub) broadcast(ev engine.Event) {
	data, err := json.Marshal(EventMessage{Type: "event", Event: ev})
	if err != nil {
		h.logger.Error("Failed to marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.shouldReceive(ev.Symbol) {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("Client send buffer full, skipping event")
			}
		}
	}
}

// writePump sends messages to the WebSocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes client messages.
func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Symbols)
		c.reply(map[string]interface{}{"type": "subscribed", "symbols": msg.Symbols})
	case "unsubscribe":
		c.unsubscribe(msg.Symbols)
		c.reply(map[string]interface{}{"type": "unsubscribed", "symbols": msg.Symbols})
	case "ping":
		c.reply(map[string]string{"type": "pong"})
	default:
		c.hub.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

// subscribe subscribes to specific symbols. An empty list or "*" means all.
func (c *WebSocketClient) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = true
		c.subscribedPairs = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, symbol := range symbols {
			c.subscribedPairs[symbol] = true
		}
	}
}

// unsubscribe unsubscribes from specific symbols.
func (c *WebSocketClient) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = false
		c.subscribedPairs = make(map[string]bool)
	} else {
		for _, symbol := range symbols {
			delete(c.subscribedPairs, symbol)
		}
	}
}

func (c *WebSocketClient) shouldReceive(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.subscribedPairs[symbol]
}

// reply queues a control message to this client only.
func (c *WebSocketClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
