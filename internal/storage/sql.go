package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/ammar1510/chathub/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const messageColumns = "id, sender, recipient, text, created_at"

// SQLStore is the durable backend. The same statements serve Postgres and
// SQLite; placeholders are written as ? and rebound for Postgres.
type SQLStore struct {
	db          *sql.DB
	driverName  string
	maxMessages int
}

// NewSQLStore connects, pings and creates the schema
func NewSQLStore(ctx context.Context, driverName, dsn string, maxMessages int) (*SQLStore, error) {
	if driverName != DriverPostgres && driverName != DriverSQLite {
		return nil, fmt.Errorf("unsupported database type: %s", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if driverName == DriverSQLite {
		// one connection keeps ":memory:" databases shared and serialises writers
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if maxMessages < 0 {
		maxMessages = 0
	}
	s := &SQLStore{db: db, driverName: driverName, maxMessages: maxMessages}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			last_seen TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			recipient TEXT,
			text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, recipient)`,
	}

	for _, query := range queries {
		if s.driverName == DriverPostgres {
			query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
		}
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// rebind replaces ? with $1, $2, ... for Postgres
func (s *SQLStore) rebind(query string) string {
	if s.driverName != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsOnline,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.LastSeen = user.LastSeen.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var recipient sql.NullString
	if err := row.Scan(&msg.ID, &msg.Sender, &recipient, &msg.Text, &msg.Timestamp); err != nil {
		return nil, err
	}
	msg.Recipient = recipient.String
	msg.Timestamp = msg.Timestamp.UTC()
	return &msg, nil
}

func (s *SQLStore) findUser(ctx context.Context, column string, value interface{}) (*models.User, error) {
	query := s.rebind(`
		SELECT id, username, email, password_hash, is_online, last_seen, created_at
		FROM users WHERE ` + column + ` = ?`)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email", email)
}

func (s *SQLStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, "username", username)
}

func (s *SQLStore) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findUser(ctx, "id", id)
}

func (s *SQLStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	existing, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	taken, err := s.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		return nil, ErrUsernameTaken
	}

	now := stamp()
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, username, email, password_hash, is_online, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING`),
		uuid.New(), username, email, passwordHash, false, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return s.resolveConflict(ctx, username, email, err)
		}
		return nil, err
	}

	// a concurrent insert for the same email wins; read back whichever row exists
	user, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s vanished after insert", email)
	}
	return user, nil
}

func (s *SQLStore) SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) (*models.User, error) {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?"),
		online, stamp(), userID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, nil
	}

	return s.FindUserByID(ctx, userID)
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, is_online, last_seen
		FROM users
		ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]models.UserSummary, 0)
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.IsOnline, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.LastSeen = u.LastSeen.UTC()
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, nil
}

// SaveMessage inserts the message and trims retention in one transaction.
// It is never retried, so an ambiguous failure cannot store a message twice.
func (s *SQLStore) SaveMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	msg := &models.Message{
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		Timestamp: stamp(),
	}

	err = tx.QueryRowContext(ctx,
		s.rebind("INSERT INTO messages (sender, recipient, text, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		sender, sql.NullString{String: recipient, Valid: recipient != ""}, text, msg.Timestamp,
	).Scan(&msg.ID)
	if err != nil {
		return nil, err
	}

	if s.maxMessages > 0 {
		_, err = tx.ExecContext(ctx, s.rebind(`
			DELETE FROM messages WHERE id NOT IN (
				SELECT id FROM messages ORDER BY created_at DESC, id DESC LIMIT ?
			)`), s.maxMessages)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, limit int, viewer string) ([]*models.Message, error) {
	if viewer == "" {
		return s.recent(ctx, "", nil, limit)
	}
	return s.recent(ctx,
		"WHERE recipient IS NULL OR sender = ? OR recipient = ?",
		[]interface{}{viewer, viewer}, limit)
}

func (s *SQLStore) ListConversation(ctx context.Context, userA, userB string, limit int) ([]*models.Message, error) {
	return s.recent(ctx,
		`WHERE (sender = ? AND recipient = ?)
		    OR (sender = ? AND recipient = ?)
		    OR (recipient IS NULL AND (sender = ? OR sender = ?))`,
		[]interface{}{userA, userB, userB, userA, userA, userB}, limit)
}

// recent selects the newest limit rows matching where and returns them oldest first
func (s *SQLStore) recent(ctx context.Context, where string, args []interface{}, limit int) ([]*models.Message, error) {
	var query string
	if limit > 0 {
		query = fmt.Sprintf(`
			SELECT %[1]s FROM (
				SELECT %[1]s FROM messages %[2]s ORDER BY created_at DESC, id DESC LIMIT ?
			) AS recent
			ORDER BY created_at ASC, id ASC`, messageColumns, where)
		args = append(args, limit)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM messages %s ORDER BY created_at ASC, id ASC`, messageColumns, where)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// resolveConflict settles an insert that lost a race: the same email
// returns the winner's row, a taken username is ErrUsernameTaken.
func (s *SQLStore) resolveConflict(ctx context.Context, username, email string, cause error) (*models.User, error) {
	existing, err := s.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	taken, err := s.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken != nil {
		return nil, ErrUsernameTaken
	}
	return nil, cause
}

// isUniqueViolation recognises UNIQUE constraint errors from either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// withTimeout applies d unless it is zero or negative
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
