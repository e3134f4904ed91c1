package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/session"
	"github.com/ammar1510/chathub/internal/storage"
)

// DefaultHistoryLimit is how many messages a joining connection receives
const DefaultHistoryLimit = 50

// Verifier is the credential collaborator
type Verifier interface {
	Verify(ctx context.Context, token string) (session.Identity, error)
}

// Presence binds and releases connections and republishes the full roster
// whenever that changes.
type Presence struct {
	registry     *session.Registry
	store        storage.Store
	transport    Transport
	verifier     Verifier
	historyLimit int
}

// NewPresence creates a broadcaster; historyLimit <= 0 uses DefaultHistoryLimit
func NewPresence(registry *session.Registry, store storage.Store, transport Transport, verifier Verifier, historyLimit int) *Presence {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Presence{
		registry:     registry,
		store:        store,
		transport:    transport,
		verifier:     verifier,
		historyLimit: historyLimit,
	}
}

// Join authenticates connID with token. On success the connection gets
// its identity and history and everyone gets the new roster.
func (p *Presence) Join(ctx context.Context, connID uuid.UUID, token string) (session.Identity, error) {
	id, err := p.verifier.Verify(ctx, token)
	if err != nil {
		log.Info("Join rejected on connection %s: %v", connID, err)
		return session.Identity{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	if previous, had := p.registry.Bind(connID, id); had && previous.UserID != id.UserID {
		p.settleOffline(ctx, previous)
	}
	p.setStatus(ctx, id, true)

	p.transport.Send(connID, currentUserEvent(id.Username))
	p.PublishRoster(ctx)

	history, err := p.store.ListMessages(ctx, p.historyLimit, id.Username)
	if err != nil {
		log.Error("Failed to load history for %s: %v", id.Username, err)
		history = nil
	}
	p.transport.Send(connID, historyEvent(history))

	log.Info("User %s joined on connection %s", id.Username, connID)
	return id, nil
}

// Leave releases connID. It is safe to call more than once.
func (p *Presence) Leave(ctx context.Context, connID uuid.UUID) (session.Identity, bool) {
	id, remaining, ok := p.registry.Unbind(connID)
	if !ok {
		return session.Identity{}, false
	}

	if remaining == 0 {
		p.settleOffline(ctx, id)
	}
	p.PublishRoster(ctx)

	log.Info("User %s left connection %s", id.Username, connID)
	return id, true
}

// settleOffline marks id offline, then re-checks in case a new connection
// bound while the write was in flight.
func (p *Presence) settleOffline(ctx context.Context, id session.Identity) {
	if len(p.registry.ConnectionsOfUser(id.UserID)) > 0 {
		return
	}
	p.setStatus(ctx, id, false)
	if len(p.registry.ConnectionsOfUser(id.UserID)) > 0 {
		p.setStatus(ctx, id, true)
	}
}

func (p *Presence) setStatus(ctx context.Context, id session.Identity, online bool) {
	user, err := p.store.SetOnlineStatus(ctx, id.UserID, online)
	if err != nil {
		log.Error("Failed to set %s online=%v: %v", id.Username, online, err)
		return
	}
	if user == nil {
		log.Warn("Cannot set status of unknown user %s", id.UserID)
	}
}

// PublishRoster sends the full user list to every authenticated connection.
// A failed read skips the publish so clients keep their last roster.
func (p *Presence) PublishRoster(ctx context.Context) {
	users, err := p.store.ListUsers(ctx)
	if err != nil {
		log.Error("Failed to load roster: %v", err)
		return
	}

	event := usersEvent(users)
	for _, conn := range p.registry.Connections() {
		p.transport.Send(conn, event)
	}
}
