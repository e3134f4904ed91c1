package models

import (
	"time"
)

// Message is a persisted chat message. An empty Recipient marks a public
// message visible to everyone.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// IsPrivate is derived from the recipient, never stored
func (m *Message) IsPrivate() bool {
	return m.Recipient != ""
}

// VisibleTo reports whether viewer may see the message
func (m *Message) VisibleTo(viewer string) bool {
	return m.Recipient == "" || m.Sender == viewer || m.Recipient == viewer
}

// InConversation reports whether the message belongs to the mutual thread of a and b:
// directed messages between them plus public posts by either side.
func (m *Message) InConversation(a, b string) bool {
	if m.Recipient == "" {
		return m.Sender == a || m.Sender == b
	}
	return (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a)
}

// MessageView is what we deliver to clients
type MessageView struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsPrivate bool      `json:"isPrivate"`
}

// NewMessageView builds the client view of a message
func NewMessageView(m *Message) MessageView {
	return MessageView{
		ID:        m.ID,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		IsPrivate: m.IsPrivate(),
	}
}

// NewMessageViews converts a slice, preserving order
func NewMessageViews(messages []*Message) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, NewMessageView(m))
	}
	return views
}
