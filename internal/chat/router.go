package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/models"
	"github.com/ammar1510/chathub/internal/session"
	"github.com/ammar1510/chathub/internal/storage"
)

// DefaultMaxMessageLength is the text limit in characters
const DefaultMaxMessageLength = 500

// Router persists incoming messages and fans them out to live connections
type Router struct {
	registry  *session.Registry
	store     storage.Store
	transport Transport
	maxLength int
}

// NewRouter creates a router; maxLength <= 0 uses DefaultMaxMessageLength
func NewRouter(registry *session.Registry, store storage.Store, transport Transport, maxLength int) *Router {
	if maxLength <= 0 {
		maxLength = DefaultMaxMessageLength
	}
	return &Router{
		registry:  registry,
		store:     store,
		transport: transport,
		maxLength: maxLength,
	}
}

// ValidateText rejects blank text and text longer than max characters
func ValidateText(text string, max int) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > max {
		return ErrMessageTooLong
	}
	return nil
}

// HandleIncoming routes one message sent on connID. recipient == "" makes
// it public. Nothing is persisted unless the connection is authenticated
// and the payload is valid, and nothing is delivered unless it persisted.
func (r *Router) HandleIncoming(ctx context.Context, connID uuid.UUID, text, recipient string) (models.MessageView, error) {
	sender, ok := r.registry.Lookup(connID)
	if !ok {
		return models.MessageView{}, ErrNotAuthenticated
	}

	if err := ValidateText(text, r.maxLength); err != nil {
		return models.MessageView{}, err
	}

	recipient = strings.TrimSpace(recipient)
	if recipient != "" {
		user, err := r.store.FindUserByUsername(ctx, recipient)
		if err != nil {
			return models.MessageView{}, fmt.Errorf("resolve recipient %s: %w", recipient, err)
		}
		if user == nil {
			return models.MessageView{}, ErrUnknownRecipient
		}
	}

	msg, err := r.store.SaveMessage(ctx, sender.Username, recipient, text)
	if err != nil {
		return models.MessageView{}, fmt.Errorf("save message from %s: %w", sender.Username, err)
	}

	view := models.NewMessageView(msg)
	event := messageEvent(view)
	targets := r.deliverySet(connID, view)
	for _, target := range targets {
		r.transport.Send(target, event)
	}

	log.Debug("Message %d from %s delivered to %d connections", view.ID, sender.Username, len(targets))
	return view, nil
}

// deliverySet is every authenticated connection for public messages, or
// the sender's connection plus the recipient's live connections.
func (r *Router) deliverySet(senderConn uuid.UUID, view models.MessageView) []uuid.UUID {
	if !view.IsPrivate {
		return r.registry.Connections()
	}

	targets := []uuid.UUID{senderConn}
	for _, conn := range r.registry.ConnectionsOf(view.Recipient) {
		if conn != senderConn {
			targets = append(targets, conn)
		}
	}
	return targets
}
