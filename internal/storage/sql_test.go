package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens a private in-memory SQLite database
func setupTestDB(t *testing.T, maxMessages int) *SQLStore {
	t.Helper()

	s, err := NewSQLStore(context.Background(), DriverSQLite, ":memory:", maxMessages)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, maxMessages int) Store {
		return setupTestDB(t, maxMessages)
	})
}

func TestNewSQLStore(t *testing.T) {
	tests := []struct {
		name      string
		driver    string
		dsn       string
		wantError bool
	}{
		{name: "sqlite in memory", driver: DriverSQLite, dsn: ":memory:", wantError: false},
		{name: "unsupported driver", driver: "mysql", dsn: "whatever", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSQLStore(context.Background(), tt.driver, tt.dsn, 0)
			if tt.wantError {
				assert.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
			s.Close()
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driverName: DriverPostgres}
	lite := &SQLStore{driverName: DriverSQLite}

	query := "SELECT * FROM users WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM users WHERE a = $1 AND b = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestSQLStoreSchemaIsReentrant(t *testing.T) {
	s := setupTestDB(t, 0)
	require.NoError(t, s.createTables(context.Background()))
}

func TestSQLStorePublicMessageStoresNullRecipient(t *testing.T) {
	s := setupTestDB(t, 0)
	ctx := context.Background()

	_, err := s.SaveMessage(ctx, "alice", "", "hi")
	require.NoError(t, err)

	var nulls int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE recipient IS NULL").Scan(&nulls)
	require.NoError(t, err)
	assert.Equal(t, 1, nulls)
}

func TestSQLStoreDetectsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t, 0)
	user, err := s.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)

	// bypass the pre-insert checks the way a concurrent writer would
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, username, email, password_hash, is_online, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		user.ID.String()+"-2", "bob", "other@example.com", "hash", false, user.CreatedAt, user.CreatedAt)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	assert.False(t, isUniqueViolation(errors.New("connection refused")))
}

func TestSQLStoreResolvesLostInsertRace(t *testing.T) {
	ctx := context.Background()
	s := setupTestDB(t, 0)
	bob, err := s.CreateUser(ctx, "bob", "bob@example.com", "hash")
	require.NoError(t, err)
	cause := errors.New("UNIQUE constraint failed")

	tests := []struct {
		name     string
		username string
		email    string
		wantUser bool
		wantErr  error
	}{
		{name: "same email returns the winner", username: "robert", email: "bob@example.com", wantUser: true},
		{name: "taken username", username: "bob", email: "other@example.com", wantErr: ErrUsernameTaken},
		{name: "unrelated conflict keeps the cause", username: "carol", email: "carol@example.com", wantErr: cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := s.resolveConflict(ctx, tt.username, tt.email, cause)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, bob.ID, user.ID)
		})
	}
}

func TestSelectorKeepsUsernameTakenDistinct(t *testing.T) {
	err := wrap(ErrUsernameTaken)
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.False(t, errors.Is(err, ErrUnavailable))
}
