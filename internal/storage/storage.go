// Package storage persists users and messages behind a single Store
// interface. The concrete backend (Postgres, SQLite, embedded Postgres or
// the in-process memory store) is chosen once by a Selector and is
// invisible to callers.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/models"
)

var (
	// ErrUnavailable wraps any failure of the active backend
	ErrUnavailable = errors.New("storage unavailable")
	// ErrUsernameTaken is returned when a new email asks for a username already in use
	ErrUsernameTaken = errors.New("username already taken")
)

// Backend names reported by Selector.Backend
const (
	BackendPostgres         = "postgres"
	BackendSQLite           = "sqlite3"
	BackendEmbeddedPostgres = "embedded-postgres"
	BackendMemory           = "memory"
)

// Store is the persistence contract shared by every backend.
//
// Lookups return (nil, nil) when nothing matches. Message listings are
// ordered oldest first by timestamp, with id breaking ties, and a limit
// of zero or less means no limit.
type Store interface {
	// CreateUser is idempotent by email: an existing user with that email is
	// returned unchanged.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// SetOnlineStatus sets the flag and refreshes LastSeen. Unknown users yield (nil, nil).
	SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.UserSummary, error)

	// SaveMessage assigns id and timestamp. An empty recipient makes the message public.
	SaveMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error)
	// ListMessages returns the most recent limit messages, filtered to those
	// visible to viewer when viewer is non-empty.
	ListMessages(ctx context.Context, limit int, viewer string) ([]*models.Message, error)
	// ListConversation returns the most recent limit messages exchanged
	// between userA and userB plus public posts by either of them.
	ListConversation(ctx context.Context, userA, userB string, limit int) ([]*models.Message, error)

	Close() error
}

// stamp returns the current time at the precision every backend can hold
func stamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
