package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
)

// EmbeddedOptions configures a throwaway Postgres instance
type EmbeddedOptions struct {
	// Port 0 picks a free local port
	Port         uint32
	StartTimeout time.Duration
	Output       io.Writer
}

// EmbeddedPostgres is a disposable Postgres server living in a temp dir
type EmbeddedPostgres struct {
	pg   *embeddedpostgres.EmbeddedPostgres
	dir  string
	port uint32
}

// StartEmbeddedPostgres provisions and starts a Postgres server whose data
// is deleted on Stop.
func StartEmbeddedPostgres(ctx context.Context, opts EmbeddedOptions) (*EmbeddedPostgres, error) {
	port := opts.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	dir, err := os.MkdirTemp("", "chathub-pg-*")
	if err != nil {
		return nil, fmt.Errorf("create embedded postgres dir: %w", err)
	}

	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 60 * time.Second
	}
	output := opts.Output
	if output == nil {
		output = io.Discard
	}

	pg := embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		Port(port).
		Database("chathub").
		RuntimePath(filepath.Join(dir, "runtime")).
		DataPath(filepath.Join(dir, "data")).
		StartTimeout(startTimeout).
		Logger(output))

	started := make(chan error, 1)
	go func() {
		started <- pg.Start()
	}()

	select {
	case err := <-started:
		if err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("start embedded postgres: %w", err)
		}
	case <-ctx.Done():
		// Start has its own timeout; wait for it so the process is not orphaned
		go func() {
			if err := <-started; err == nil {
				pg.Stop()
			}
			os.RemoveAll(dir)
		}()
		return nil, ctx.Err()
	}

	return &EmbeddedPostgres{pg: pg, dir: dir, port: port}, nil
}

// DSN returns the connection string for the embedded database
func (e *EmbeddedPostgres) DSN() string {
	return fmt.Sprintf("host=localhost port=%d user=postgres password=postgres dbname=chathub sslmode=disable", e.port)
}

// Stop shuts the server down and removes its files
func (e *EmbeddedPostgres) Stop() error {
	stopErr := e.pg.Stop()
	rmErr := os.RemoveAll(e.dir)
	return errors.Join(stopErr, rmErr)
}

func freePort() (uint32, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return uint32(l.Addr().(*net.TCPAddr).Port), nil
}

// embeddedStore closes its database before stopping the server under it
type embeddedStore struct {
	*SQLStore
	server *EmbeddedPostgres
}

func (s *embeddedStore) Close() error {
	return errors.Join(s.SQLStore.Close(), s.server.Stop())
}
