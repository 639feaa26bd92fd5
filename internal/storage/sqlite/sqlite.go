package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	// BusyTimeout is how long a writer waits for the database lock held by
	// another process (batch parent, isolated children, webhooks).
	BusyTimeout time.Duration
	Logger      log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of the task, KV and record repositories.
// The database file is shared by every cooperating bosync process.
type Repository struct {
	db            *sql.DB
	schemaVersion uint
	logger        log.Logger
}

// NewRepository opens (creating it if missing) the queue database and migrates it.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(cfg.DBPath, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	version, err := migrator.Up(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	cfg.Logger.WithValues(log.Kv{"path": cfg.DBPath, "schema": version}).Debugf("Queue database ready")

	return &Repository{db: db, schemaVersion: version, logger: cfg.Logger}, nil
}

func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds())
}

// DB returns the underlying database, used by components that share the
// connection like the database lock.
func (r *Repository) DB() *sql.DB { return r.db }

// SchemaVersion returns the migrated schema version.
func (r *Repository) SchemaVersion() uint { return r.schemaVersion }

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }
