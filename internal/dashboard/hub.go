// Package dashboard pushes sync progress and record changes to WebSocket
// clients.
//
// The Hub owns the client set and a buffered broadcast queue. It is mounted
// as an http.Handler on the API router (GET /ws). The Handler turns engine
// and API events into messages and feeds them to the hub.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncStarted indicates a sync pass began
	MessageTypeSyncStarted MessageType = "sync_started"

	// MessageTypeSyncComplete indicates a sync pass finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a sync pass aborted
	MessageTypeSyncFailed MessageType = "sync_failed"

	// MessageTypeRecordUpdate indicates a course or task was created, updated or archived
	MessageTypeRecordUpdate MessageType = "record_update"

	// MessageTypeStats carries table counts
	MessageTypeStats MessageType = "stats"
)

// Message is one broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds hub configuration.
type Config struct {
	// BufferSize bounds the broadcast queue; messages beyond it are dropped
	BufferSize int

	// WriteTimeout bounds each write to a client
	WriteTimeout time.Duration

	// OriginPatterns are passed to websocket.Accept. Empty means same origin only.
	OriginPatterns []string

	Logger zerolog.Logger
}

// DefaultConfig returns a 100 message buffer and a 5s write timeout.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:   100,
		WriteTimeout: 5 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// Hub manages WebSocket connections and broadcasts dashboard messages.
type Hub struct {
	config *Config
	log    zerolog.Logger

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.RWMutex

	broadcast chan Message

	// Welcome builds the message sent to each new client. Nil sends none.
	Welcome func(ctx context.Context) (Message, bool)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub. Run must be called for broadcasts to be delivered.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		config:    config,
		log:       config.Logger.With().Str("component", "dashboard").Logger(),
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Message, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run delivers queued messages until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.ctx.Done():
			return nil
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Close stops the hub without a running Run loop.
func (h *Hub) Close() {
	h.shutdown()
}

func (h *Hub) shutdown() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-h.ctx.Done():
	case h.broadcast <- msg:
	default:
		h.log.Warn().Str("type", string(msg.Type)).Msg("broadcast queue full; dropping message")
	}
}

func (h *Hub) deliver(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal message")
		return
	}

	h.clientsMu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.clientsMu.RUnlock()

	for _, conn := range clients {
		if err := h.write(conn, data); err != nil {
			h.log.Debug().Err(err).Msg("failed to send to client")
			h.removeClient(conn)
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.config.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.config.OriginPatterns,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.log.Info().Int("clients", count).Msg("client connected")

	if h.Welcome != nil {
		if msg, ok := h.Welcome(r.Context()); ok {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			if data, err := json.Marshal(msg); err == nil {
				_ = h.write(conn, data)
			}
		}
	}

	// Block in the read loop; gin's handler goroutine owns the connection.
	h.readLoop(conn)
}

// readLoop discards client frames until the client goes away.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.log.Info().Int("clients", count).Msg("client disconnected")
}

// ClientCount returns the current number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
