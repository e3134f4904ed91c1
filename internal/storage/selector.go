package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/chathub/internal/logger"
	"github.com/ammar1510/chathub/internal/models"
)

var log = logger.New("storage")

// Candidate is one backend the Selector may try
type Candidate struct {
	Name string
	Open func(ctx context.Context) (Store, error)
}

// Options describe the durable candidates tried at startup
type Options struct {
	Driver               string
	DSN                  string
	Embedded             bool
	EmbeddedPort         uint32
	ConnectTimeout       time.Duration
	EmbeddedStartTimeout time.Duration
	EmbeddedOutput       io.Writer
	MaxMessages          int
}

// DurableCandidates builds the chain: configured database, then an
// embedded Postgres when enabled.
func DurableCandidates(opts Options) []Candidate {
	var candidates []Candidate

	if opts.DSN != "" {
		candidates = append(candidates, Candidate{
			Name: opts.Driver,
			Open: func(ctx context.Context) (Store, error) {
				ctx, cancel := withTimeout(ctx, opts.ConnectTimeout)
				defer cancel()
				return NewSQLStore(ctx, opts.Driver, opts.DSN, opts.MaxMessages)
			},
		})
	}

	if opts.Embedded {
		candidates = append(candidates, Candidate{
			Name: BackendEmbeddedPostgres,
			Open: func(ctx context.Context) (Store, error) {
				server, err := StartEmbeddedPostgres(ctx, EmbeddedOptions{
					Port:         opts.EmbeddedPort,
					StartTimeout: opts.EmbeddedStartTimeout,
					Output:       opts.EmbeddedOutput,
				})
				if err != nil {
					return nil, err
				}

				connectCtx, cancel := withTimeout(ctx, opts.ConnectTimeout)
				defer cancel()
				sqlStore, err := NewSQLStore(connectCtx, DriverPostgres, server.DSN(), opts.MaxMessages)
				if err != nil {
					server.Stop()
					return nil, err
				}
				return &embeddedStore{SQLStore: sqlStore, server: server}, nil
			},
		})
	}

	return candidates
}

// Selector is a Store whose backend is chosen once, asynchronously.
// Calls made before selection finishes block until it does; afterwards
// each call runs under the configured timeout.
type Selector struct {
	ready    chan struct{}
	once     sync.Once
	store    Store
	backend  string
	timeout  time.Duration
	fallback func() Store
}

// NewSelector creates a selector whose last resort is fallback
func NewSelector(timeout time.Duration, fallback func() Store) *Selector {
	return &Selector{
		ready:    make(chan struct{}),
		timeout:  timeout,
		fallback: fallback,
	}
}

// Select tries each candidate in order and settles on the first that
// opens, or the fallback. Only the first call has any effect.
func (s *Selector) Select(ctx context.Context, candidates ...Candidate) {
	s.once.Do(func() {
		defer close(s.ready)

		for _, c := range candidates {
			log.Info("Trying %s backend", c.Name)
			store, err := c.Open(ctx)
			if err == nil {
				s.store, s.backend = store, c.Name
				log.Info("Using %s backend", c.Name)
				return
			}
			log.Info("%s backend unavailable: %v", c.Name, err)
		}

		s.store, s.backend = s.fallback(), BackendMemory
		log.Warn("No durable backend reachable, messages and users will not survive a restart")
	})
}

// Ready is closed once a backend has been chosen
func (s *Selector) Ready() <-chan struct{} {
	return s.ready
}

// Backend names the chosen backend, or "" while selection is pending
func (s *Selector) Backend() string {
	select {
	case <-s.ready:
		return s.backend
	default:
		return ""
	}
}

// acquire waits for selection and derives the per-call context
func (s *Selector) acquire(ctx context.Context) (Store, context.Context, context.CancelFunc, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, nil, nil, fmt.Errorf("%w: waiting for backend selection: %w", ErrUnavailable, ctx.Err())
	}

	callCtx, cancel := withTimeout(ctx, s.timeout)
	return s.store, callCtx, cancel, nil
}

func wrap(err error) error {
	if err == nil || errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (s *Selector) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := store.CreateUser(ctx, username, email, passwordHash)
	return user, wrap(err)
}

func (s *Selector) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := store.FindUserByEmail(ctx, email)
	return user, wrap(err)
}

func (s *Selector) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := store.FindUserByUsername(ctx, username)
	return user, wrap(err)
}

func (s *Selector) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := store.FindUserByID(ctx, id)
	return user, wrap(err)
}

func (s *Selector) SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) (*models.User, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	user, err := store.SetOnlineStatus(ctx, userID, online)
	return user, wrap(err)
}

func (s *Selector) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	users, err := store.ListUsers(ctx)
	return users, wrap(err)
}

func (s *Selector) SaveMessage(ctx context.Context, sender, recipient, text string) (*models.Message, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	msg, err := store.SaveMessage(ctx, sender, recipient, text)
	return msg, wrap(err)
}

func (s *Selector) ListMessages(ctx context.Context, limit int, viewer string) ([]*models.Message, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	messages, err := store.ListMessages(ctx, limit, viewer)
	return messages, wrap(err)
}

func (s *Selector) ListConversation(ctx context.Context, userA, userB string, limit int) ([]*models.Message, error) {
	store, ctx, cancel, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	messages, err := store.ListConversation(ctx, userA, userB, limit)
	return messages, wrap(err)
}

// Close waits for selection, then closes the chosen backend
func (s *Selector) Close() error {
	<-s.ready
	return s.store.Close()
}
