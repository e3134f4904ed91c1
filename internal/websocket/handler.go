package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ammar1510/chathub/internal/chat"
	"github.com/ammar1510/chathub/internal/logger"
)

// Inbound event types
const (
	MessageTypeJoin           = "join"
	MessageTypeSendMessage    = "sendMessage"
	MessageTypeTyping         = "typing"
	MessageTypeStopTyping     = "stopTyping"
	MessageTypeGetCurrentUser = "getCurrentUser"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var log = logger.New("websocket")

// Handler receives decoded client events. *chat.Hub implements it.
type Handler interface {
	Join(ctx context.Context, connID uuid.UUID, token string) error
	SendMessage(ctx context.Context, connID uuid.UUID, text, recipient string) error
	Typing(connID uuid.UUID)
	StopTyping(connID uuid.UUID)
	CurrentUser(connID uuid.UUID)
	Disconnect(ctx context.Context, connID uuid.UUID)
	ReportError(connID uuid.UUID, err error)
}

// Client represents a connected websocket client
type Client struct {
	ID     uuid.UUID
	Socket *websocket.Conn
	Send   chan []byte
}

// Options configure the manager
type Options struct {
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// Manager maintains the set of live connections and implements
// chat.Transport over them.
type Manager struct {
	clients   map[uuid.UUID]*Client
	mutex     sync.Mutex
	handler   Handler
	origins   []string
	rateLimit int
	pongWait  time.Duration
}

// ClientMessage is one inbound frame
type ClientMessage struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Text      string `json:"text,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// NewManager creates a new websocket manager
func NewManager(opts Options) *Manager {
	return &Manager{
		clients:   make(map[uuid.UUID]*Client),
		origins:   opts.AllowedOrigins,
		rateLimit: opts.RateLimitPerMinute,
		pongWait:  pongWait,
	}
}

// SetHandler attaches the event handler. It must be called before serving.
func (m *Manager) SetHandler(h Handler) {
	m.handler = h
}

// Send encodes event and queues it for connID without blocking. A client
// whose queue is full is dropped.
func (m *Manager) Send(connID uuid.UUID, event chat.Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to encode %s event: %v", event.Type, err)
		return false
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	client, ok := m.clients[connID]
	if !ok {
		log.Debug("Connection %s not live, dropping %s event", connID, event.Type)
		return false
	}

	select {
	case client.Send <- payload:
		return true
	default:
		m.removeLocked(connID)
		log.Warn("Send queue full for connection %s, removing client", connID)
		return false
	}
}

// Close ends connID. Its read pump then reports the disconnect.
func (m *Manager) Close(connID uuid.UUID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removeLocked(connID)
}

// Count returns the number of live connections
func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients)
}

func (m *Manager) register(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.clients[client.ID] = client
	log.Info("Client connected: %s", client.ID)
}

func (m *Manager) removeLocked(connID uuid.UUID) {
	if client, ok := m.clients[connID]; ok {
		delete(m.clients, connID)
		close(client.Send)
		log.Info("Client disconnected: %s", connID)
	}
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range m.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.Warn("Rejected websocket origin %s", origin)
	return false
}

// HandleWebSocket upgrades the request and starts the client's pumps. The
// connection stays unauthenticated until it sends a join event.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection from %s: %v", c.Request.RemoteAddr, err)
		return
	}

	client := &Client{
		ID:     uuid.New(),
		Socket: conn,
		Send:   make(chan []byte, sendBufferSize),
	}
	m.register(client)

	go client.readPump(m)
	go client.writePump(m.pongWait * 9 / 10)
}

// rateWindow counts frames in fixed one-minute windows
type rateWindow struct {
	limit int
	count int
	start time.Time
}

func (w *rateWindow) allow(now time.Time) bool {
	if w.limit <= 0 {
		return true
	}
	if now.Sub(w.start) >= time.Minute {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= w.limit
}

// readPump decodes frames and hands them to the handler until the socket fails
func (c *Client) readPump(m *Manager) {
	defer func() {
		m.Close(c.ID)
		c.Socket.Close()
		m.handler.Disconnect(context.Background(), c.ID)
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(m.pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(m.pongWait))
		return nil
	})

	limiter := &rateWindow{limit: m.rateLimit, start: time.Now()}

	for {
		_, data, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if !limiter.allow(time.Now()) {
			log.Warn("Rate limit exceeded for client %s", c.ID)
			m.handler.ReportError(c.ID, chat.ErrRateLimited)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("Malformed frame from client %s: %v", c.ID, err)
			m.handler.ReportError(c.ID, chat.ErrInvalidPayload)
			continue
		}

		m.dispatch(c.ID, msg)
		// a join can block on storage startup for longer than pongWait
		c.Socket.SetReadDeadline(time.Now().Add(m.pongWait))
	}
}

func (m *Manager) dispatch(connID uuid.UUID, msg ClientMessage) {
	ctx := context.Background()

	switch msg.Type {
	case MessageTypeJoin:
		m.handler.Join(ctx, connID, msg.Token)
	case MessageTypeSendMessage:
		m.handler.SendMessage(ctx, connID, msg.Text, msg.Recipient)
	case MessageTypeTyping:
		m.handler.Typing(connID)
	case MessageTypeStopTyping:
		m.handler.StopTyping(connID)
	case MessageTypeGetCurrentUser:
		m.handler.CurrentUser(connID)
	default:
		log.Warn("Unknown message type '%s' from client %s", msg.Type, connID)
		m.handler.ReportError(connID, chat.ErrUnknownEvent)
	}
}

// writePump writes queued events, one frame each, and keeps the socket alive
func (c *Client) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the manager closed the channel
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
