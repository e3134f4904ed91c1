// Package chat is the routing core: it binds connections to identities,
// routes public and private messages and keeps every client's roster
// current.
package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/logger"
	"github.com/ammar1510/chathub/internal/session"
	"github.com/ammar1510/chathub/internal/storage"
)

var log = logger.New("chat")

// Options tune the hub
type Options struct {
	MaxMessageLength int
	HistoryLimit     int
}

// Hub is what the transport talks to. Every method reports failures to
// the originating connection as an error event and never panics the caller.
type Hub struct {
	registry  *session.Registry
	store     storage.Store
	transport Transport
	router    *Router
	presence  *Presence
}

// NewHub wires the router and presence broadcaster over one registry
func NewHub(store storage.Store, verifier Verifier, registry *session.Registry, transport Transport, opts Options) *Hub {
	return &Hub{
		registry:  registry,
		store:     store,
		transport: transport,
		router:    NewRouter(registry, store, transport, opts.MaxMessageLength),
		presence:  NewPresence(registry, store, transport, verifier, opts.HistoryLimit),
	}
}

// Join handles a join(token) event
func (h *Hub) Join(ctx context.Context, connID uuid.UUID, token string) error {
	_, err := h.presence.Join(ctx, connID, token)
	if err != nil {
		h.ReportError(connID, err)
	}
	return err
}

// SendMessage handles a sendMessage({text, recipient?}) event
func (h *Hub) SendMessage(ctx context.Context, connID uuid.UUID, text, recipient string) error {
	_, err := h.router.HandleIncoming(ctx, connID, text, recipient)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			log.Error("Message on connection %s not delivered: %v", connID, err)
		}
		h.ReportError(connID, err)
	}
	return err
}

// Typing tells every other authenticated connection that the sender is typing
func (h *Hub) Typing(connID uuid.UUID) {
	h.typing(connID, EventUserTyping)
}

// StopTyping clears a typing indicator
func (h *Hub) StopTyping(connID uuid.UUID) {
	h.typing(connID, EventUserStoppedTyping)
}

func (h *Hub) typing(connID uuid.UUID, eventType string) {
	id, ok := h.registry.Lookup(connID)
	if !ok {
		return
	}

	event := Event{Type: eventType, Data: id.Username}
	for _, conn := range h.registry.Connections() {
		if conn != connID {
			h.transport.Send(conn, event)
		}
	}
}

// CurrentUser answers getCurrentUser; unauthenticated connections get nothing
func (h *Hub) CurrentUser(connID uuid.UUID) {
	if id, ok := h.registry.Lookup(connID); ok {
		h.transport.Send(connID, currentUserEvent(id.Username))
	}
}

// Disconnect releases a closed connection
func (h *Hub) Disconnect(ctx context.Context, connID uuid.UUID) {
	h.presence.Leave(ctx, connID)
}

// Logout ends every live session of userID and marks the user offline.
// It returns how many connections were closed.
func (h *Hub) Logout(ctx context.Context, userID uuid.UUID) int {
	conns := h.registry.ConnectionsOfUser(userID)
	for _, conn := range conns {
		h.presence.Leave(ctx, conn)
		h.transport.Close(conn)
	}

	if len(conns) == 0 {
		if _, err := h.store.SetOnlineStatus(ctx, userID, false); err != nil {
			log.Error("Failed to mark %s offline: %v", userID, err)
			return 0
		}
		h.presence.PublishRoster(ctx)
	}
	return len(conns)
}

// ReportError sends the client-facing reason for err to connID
func (h *Hub) ReportError(connID uuid.UUID, err error) {
	h.transport.Send(connID, errorEvent(err))
}

// Online returns the number of authenticated connections
func (h *Hub) Online() int {
	return h.registry.Count()
}
