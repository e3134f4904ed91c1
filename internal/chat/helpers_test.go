package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chathub/internal/models"
	"github.com/ammar1510/chathub/internal/session"
	"github.com/ammar1510/chathub/internal/storage"
)

// recorder is a Transport that keeps every event per connection
type recorder struct {
	mu     sync.Mutex
	events map[uuid.UUID][]Event
	closed map[uuid.UUID]bool
}

func newRecorder() *recorder {
	return &recorder{
		events: make(map[uuid.UUID][]Event),
		closed: make(map[uuid.UUID]bool),
	}
}

func (r *recorder) Send(connID uuid.UUID, event Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[connID] = append(r.events[connID], event)
	return true
}

func (r *recorder) Close(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[connID] = true
}

func (r *recorder) ofType(connID uuid.UUID, eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events[connID] {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) messages(connID uuid.UUID) []models.MessageView {
	var views []models.MessageView
	for _, e := range r.ofType(connID, EventMessage) {
		views = append(views, e.Data.(models.MessageView))
	}
	return views
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[uuid.UUID][]Event)
}

// staticVerifier accepts "tok-<username>" for every stored user
type staticVerifier struct {
	store storage.Store
}

func (v staticVerifier) Verify(ctx context.Context, token string) (session.Identity, error) {
	var username string
	if _, err := fmt.Sscanf(token, "tok-%s", &username); err != nil {
		return session.Identity{}, fmt.Errorf("malformed token")
	}
	user, err := v.store.FindUserByUsername(ctx, username)
	if err != nil {
		return session.Identity{}, err
	}
	if user == nil {
		return session.Identity{}, fmt.Errorf("unknown user %s", username)
	}
	return session.Identity{UserID: user.ID, Username: user.Username}, nil
}

// MockVerifier lets a test script verification results
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (session.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(session.Identity), args.Error(1)
}

// failingStore refuses every write
type failingStore struct {
	storage.Store
}

func (f failingStore) SaveMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error) {
	return nil, fmt.Errorf("%w: disk on fire", storage.ErrUnavailable)
}

type fixture struct {
	store     storage.Store
	registry  *session.Registry
	transport *recorder
	hub       *Hub
}

func newFixture(t *testing.T, usernames ...string) *fixture {
	t.Helper()
	return newFixtureWithStore(t, storage.NewMemoryStore(100), usernames...)
}

func newFixtureWithStore(t *testing.T, store storage.Store, usernames ...string) *fixture {
	t.Helper()

	for _, name := range usernames {
		_, err := store.CreateUser(context.Background(), name, name+"@example.com", "hash")
		require.NoError(t, err)
	}

	registry := session.NewRegistry()
	transport := newRecorder()
	hub := NewHub(store, staticVerifier{store: store}, registry, transport, Options{
		MaxMessageLength: 20,
		HistoryLimit:     50,
	})
	return &fixture{store: store, registry: registry, transport: transport, hub: hub}
}

func (f *fixture) join(t *testing.T, username string) uuid.UUID {
	t.Helper()
	conn := uuid.New()
	require.NoError(t, f.hub.Join(context.Background(), conn, "tok-"+username))
	return conn
}
