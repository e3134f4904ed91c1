package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/chathub/internal/models"
)

// runStoreContract exercises behaviour every backend must share
func runStoreContract(t *testing.T, newStore func(t *testing.T, maxMessages int) Store) {
	ctx := context.Background()

	t.Run("create user is idempotent by email", func(t *testing.T) {
		s := newStore(t, 0)

		first, err := s.CreateUser(ctx, "alice", "alice@example.com", "hash1")
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.NotEqual(t, uuid.Nil, first.ID)
		assert.False(t, first.IsOnline)
		assert.False(t, first.LastSeen.IsZero())

		second, err := s.CreateUser(ctx, "alice2", "alice@example.com", "hash2")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "alice", second.Username)
		assert.Equal(t, "hash1", second.PasswordHash)

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("username stays unique", func(t *testing.T) {
		s := newStore(t, 0)

		_, err := s.CreateUser(ctx, "bob", "bob@example.com", "hash")
		require.NoError(t, err)

		user, err := s.CreateUser(ctx, "bob", "other@example.com", "hash")
		assert.ErrorIs(t, err, ErrUsernameTaken)
		assert.Nil(t, user)
	})

	t.Run("lookups", func(t *testing.T) {
		s := newStore(t, 0)

		created, err := s.CreateUser(ctx, "carol", "carol@example.com", "hash")
		require.NoError(t, err)

		tests := []struct {
			name   string
			find   func() (*models.User, error)
			exists bool
		}{
			{"by email", func() (*models.User, error) { return s.FindUserByEmail(ctx, "carol@example.com") }, true},
			{"by username", func() (*models.User, error) { return s.FindUserByUsername(ctx, "carol") }, true},
			{"by id", func() (*models.User, error) { return s.FindUserByID(ctx, created.ID) }, true},
			{"unknown email", func() (*models.User, error) { return s.FindUserByEmail(ctx, "nobody@example.com") }, false},
			{"unknown username", func() (*models.User, error) { return s.FindUserByUsername(ctx, "nobody") }, false},
			{"unknown id", func() (*models.User, error) { return s.FindUserByID(ctx, uuid.New()) }, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				user, err := tt.find()
				require.NoError(t, err)
				if tt.exists {
					require.NotNil(t, user)
					assert.Equal(t, created.ID, user.ID)
					assert.Equal(t, "carol", user.Username)
				} else {
					assert.Nil(t, user)
				}
			})
		}
	})

	t.Run("set online status", func(t *testing.T) {
		s := newStore(t, 0)

		created, err := s.CreateUser(ctx, "dave", "dave@example.com", "hash")
		require.NoError(t, err)

		updated, err := s.SetOnlineStatus(ctx, created.ID, true)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.True(t, updated.IsOnline)
		assert.False(t, updated.LastSeen.Before(created.LastSeen))

		updated, err = s.SetOnlineStatus(ctx, created.ID, false)
		require.NoError(t, err)
		assert.False(t, updated.IsOnline)

		missing, err := s.SetOnlineStatus(ctx, uuid.New(), true)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("list users", func(t *testing.T) {
		s := newStore(t, 0)

		_, err := s.CreateUser(ctx, "zed", "zed@example.com", "hash")
		require.NoError(t, err)
		amy, err := s.CreateUser(ctx, "amy", "amy@example.com", "hash")
		require.NoError(t, err)
		_, err = s.SetOnlineStatus(ctx, amy.ID, true)
		require.NoError(t, err)

		users, err := s.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "amy", users[0].Username)
		assert.True(t, users[0].IsOnline)
		assert.Equal(t, "zed", users[1].Username)
		assert.False(t, users[1].IsOnline)
	})

	t.Run("public message round trip", func(t *testing.T) {
		s := newStore(t, 0)

		saved, err := s.SaveMessage(ctx, "alice", "", "hi all")
		require.NoError(t, err)
		assert.NotZero(t, saved.ID)
		assert.False(t, saved.Timestamp.IsZero())

		messages, err := s.ListMessages(ctx, 0, "")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, saved.ID, messages[0].ID)
		assert.Equal(t, "alice", messages[0].Sender)
		assert.Equal(t, "", messages[0].Recipient)
		assert.Equal(t, "hi all", messages[0].Text)
		assert.False(t, messages[0].IsPrivate())
	})

	t.Run("private message visibility", func(t *testing.T) {
		s := newStore(t, 0)

		_, err := s.SaveMessage(ctx, "alice", "", "hi all")
		require.NoError(t, err)
		secret, err := s.SaveMessage(ctx, "alice", "bob", "secret")
		require.NoError(t, err)
		_, err = s.SaveMessage(ctx, "carol", "dave", "elsewhere")
		require.NoError(t, err)

		ab, err := s.ListConversation(ctx, "alice", "bob", 0)
		require.NoError(t, err)
		ba, err := s.ListConversation(ctx, "bob", "alice", 0)
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
		require.Len(t, ab, 2)
		assert.Equal(t, "hi all", ab[0].Text)
		assert.Equal(t, secret.ID, ab[1].ID)
		assert.True(t, ab[1].IsPrivate())

		forCarol, err := s.ListMessages(ctx, 0, "carol")
		require.NoError(t, err)
		for _, m := range forCarol {
			assert.NotEqual(t, "secret", m.Text)
		}
		assert.Len(t, forCarol, 2)

		forBob, err := s.ListMessages(ctx, 0, "bob")
		require.NoError(t, err)
		require.Len(t, forBob, 2)
		assert.Equal(t, "secret", forBob[1].Text)

		all, err := s.ListMessages(ctx, 0, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("listing returns most recent oldest first", func(t *testing.T) {
		s := newStore(t, 0)

		for i := 0; i < 10; i++ {
			_, err := s.SaveMessage(ctx, "alice", "", fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}

		messages, err := s.ListMessages(ctx, 3, "")
		require.NoError(t, err)
		require.Len(t, messages, 3)
		assert.Equal(t, "msg 7", messages[0].Text)
		assert.Equal(t, "msg 9", messages[2].Text)

		for i := 1; i < len(messages); i++ {
			prev, cur := messages[i-1], messages[i]
			assert.False(t, cur.Timestamp.Before(prev.Timestamp))
			if cur.Timestamp.Equal(prev.Timestamp) {
				assert.Less(t, prev.ID, cur.ID)
			}
		}
	})

	t.Run("retention keeps the newest messages", func(t *testing.T) {
		s := newStore(t, 100)

		for i := 0; i < 101; i++ {
			_, err := s.SaveMessage(ctx, "alice", "", fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}

		messages, err := s.ListMessages(ctx, 0, "")
		require.NoError(t, err)
		require.Len(t, messages, 100)
		assert.Equal(t, "msg 1", messages[0].Text)
		assert.Equal(t, "msg 100", messages[99].Text)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t, 0)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.SaveMessage(ctx, "alice", "", fmt.Sprintf("msg %d", i))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		messages, err := s.ListMessages(ctx, 0, "")
		require.NoError(t, err)
		assert.Len(t, messages, 20)

		seen := make(map[int64]bool)
		for _, m := range messages {
			assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
			seen[m.ID] = true
		}
	})
}
