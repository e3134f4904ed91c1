package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/models"
)

// MemoryStore is the volatile fallback. Users and the message log are
// guarded by separate locks.
type MemoryStore struct {
	usersMu    sync.RWMutex
	users      map[uuid.UUID]*models.User
	byEmail    map[string]uuid.UUID
	byUsername map[string]uuid.UUID

	messagesMu  sync.RWMutex
	messages    []*models.Message
	nextID      int64
	maxMessages int

	now func() time.Time
}

// NewMemoryStore creates an empty store keeping at most maxMessages
// messages (0 keeps everything).
func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages < 0 {
		maxMessages = 0
	}
	return &MemoryStore{
		users:       make(map[uuid.UUID]*models.User),
		byEmail:     make(map[string]uuid.UUID),
		byUsername:  make(map[string]uuid.UUID),
		maxMessages: maxMessages,
		now:         stamp,
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	return &c
}

func (s *MemoryStore) CreateUser(_ context.Context, username, email, passwordHash string) (*models.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if id, ok := s.byEmail[email]; ok {
		return copyUser(s.users[id]), nil
	}
	if _, ok := s.byUsername[username]; ok {
		return nil, ErrUsernameTaken
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsOnline:     false,
		LastSeen:     now,
		CreatedAt:    now,
	}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	s.byUsername[username] = user.ID

	return copyUser(user), nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	if id, ok := s.byEmail[email]; ok {
		return copyUser(s.users[id]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	if id, ok := s.byUsername[username]; ok {
		return copyUser(s.users[id]), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	return copyUser(s.users[id]), nil
}

func (s *MemoryStore) SetOnlineStatus(_ context.Context, userID uuid.UUID, online bool) (*models.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	user.IsOnline = online
	user.LastSeen = s.now()
	return copyUser(user), nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.UserSummary, error) {
	s.usersMu.RLock()
	users := make([]models.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Summary())
	}
	s.usersMu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, sender, recipient, text string) (*models.Message, error) {
	s.messagesMu.Lock()
	defer s.messagesMu.Unlock()

	ts := s.now()
	// keep the log sorted even if the wall clock steps back
	if n := len(s.messages); n > 0 && ts.Before(s.messages[n-1].Timestamp) {
		ts = s.messages[n-1].Timestamp
	}

	s.nextID++
	msg := &models.Message{
		ID:        s.nextID,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Timestamp: ts,
	}
	s.messages = append(s.messages, msg)

	if s.maxMessages > 0 && len(s.messages) > s.maxMessages {
		s.messages = append([]*models.Message(nil), s.messages[len(s.messages)-s.maxMessages:]...)
	}

	return copyMessage(msg), nil
}

func (s *MemoryStore) ListMessages(_ context.Context, limit int, viewer string) ([]*models.Message, error) {
	return s.recent(limit, func(m *models.Message) bool {
		return viewer == "" || m.VisibleTo(viewer)
	}), nil
}

func (s *MemoryStore) ListConversation(_ context.Context, userA, userB string, limit int) ([]*models.Message, error) {
	return s.recent(limit, func(m *models.Message) bool {
		return m.InConversation(userA, userB)
	}), nil
}

// recent walks the log backwards collecting up to limit matches, then
// returns them oldest first.
func (s *MemoryStore) recent(limit int, match func(*models.Message) bool) []*models.Message {
	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()

	result := make([]*models.Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		if match(s.messages[i]) {
			result = append(result, copyMessage(s.messages[i]))
		}
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

func (s *MemoryStore) Close() error {
	return nil
}
