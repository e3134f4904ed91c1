package chat

import (
	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/models"
)

// Events produced for clients
const (
	EventCurrentUser       = "currentUser"
	EventUsers             = "users"
	EventMessageHistory    = "messageHistory"
	EventMessage           = "message"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventError             = "error"
)

// Event is one outbound frame
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Transport delivers events to live connections. Send reports false when
// the connection is gone or cannot keep up; callers ignore that result.
type Transport interface {
	Send(connID uuid.UUID, event Event) bool
	Close(connID uuid.UUID)
}

func currentUserEvent(username string) Event {
	return Event{Type: EventCurrentUser, Data: username}
}

func usersEvent(users []models.UserSummary) Event {
	return Event{Type: EventUsers, Data: users}
}

func historyEvent(messages []*models.Message) Event {
	return Event{Type: EventMessageHistory, Data: models.NewMessageViews(messages)}
}

func messageEvent(view models.MessageView) Event {
	return Event{Type: EventMessage, Data: view}
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Data: ErrorReason(err)}
}
