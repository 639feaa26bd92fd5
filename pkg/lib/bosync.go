package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/bosync/internal/app/list"
	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/app/status"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/storage/sqlite"
	"github.com/slok/bosync/internal/task/handlers"
)

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} uses ~/.bosync/bosync.db, the
// same queue the bosync CLI uses by default.
type Config struct {
	// DataDir is the bosync data directory.
	// Default: ~/.bosync.
	DataDir string

	// DBPath is the SQLite queue database path.
	// Default: <DataDir>/bosync.db.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New] and release its resources with [Client.Close].
type Client struct {
	scheduler *schedule.Service
	lister    *list.Service
	status    *status.Service
	logger    log.Logger
	closeFn   func() error
}

// New creates a new SDK client backed by the bosync SQLite queue.
//
// The caller must call [Client.Close] when done to release the database
// connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	scheduler, err := schedule.NewService(schedule.ServiceConfig{Repository: repo, Logger: cfg.Logger})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create schedule service: %w", err)
	}

	lister, err := list.NewService(list.ServiceConfig{Repository: repo, Logger: cfg.Logger})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create list service: %w", err)
	}

	statusSvc, err := status.NewService(status.ServiceConfig{
		TaskRepository:   repo,
		KVRepository:     repo,
		RecordRepository: repo,
		RecordKinds:      handlers.Kinds(),
		Logger:           cfg.Logger,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create status service: %w", err)
	}

	return &Client{
		scheduler: scheduler,
		lister:    lister,
		status:    statusSvc,
		logger:    cfg.Logger,
		closeFn:   repo.Close,
	}, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}
