package model

import (
	"fmt"
	"time"
)

// LockBackend is the implementation used for job class locks.
type LockBackend string

const (
	LockBackendFile     LockBackend = "file"
	LockBackendSQLite   LockBackend = "sqlite"
	LockBackendPostgres LockBackend = "postgres"
	LockBackendRedis    LockBackend = "redis"
)

// Config is the application configuration.
type Config struct {
	Remote RemoteConfig
	Queue  QueueConfig
	Lock   LockConfig
	Runner RunnerConfig
	Import ImportConfig
	Cron   CronConfig
	Server ServerConfig
}

// RemoteConfig configures the backoffice API client.
type RemoteConfig struct {
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
	RateLimit int
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	// OrderTypes are processed before any other task type.
	OrderTypes []TaskType
	// PageSize caps each priority partition when listing pending tasks.
	PageSize int
	// TimeoutRetryBudget is how many runs a task may use before a connectivity
	// timeout marks it as failed instead of rescheduling it.
	TimeoutRetryBudget int
	// FailureFlagTTL is how long the batch failure flag is kept.
	FailureFlagTTL time.Duration
}

// LockConfig configures the job class locks.
type LockConfig struct {
	Backend LockBackend
	Dir     string
	Wait    time.Duration
	TTL     time.Duration
	DSN     string
}

// RunnerConfig configures how tasks are executed.
type RunnerConfig struct {
	Isolated   bool
	Timeout    time.Duration
	EchoOutput bool
	// Env are KEY=VALUE or KEY (inherited) specs set on isolated children.
	Env []string
}

// ImportConfig configures the paginated imports.
type ImportConfig struct {
	PageSize int
	FetchMax int
	Language string
}

// CronConfig configures the periodic batch trigger.
type CronConfig struct {
	Schedule string
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			APIKeyEnv: "BOSYNC_API_KEY",
			Timeout:   30 * time.Second,
			RateLimit: 10,
		},
		Queue: QueueConfig{
			OrderTypes:         []TaskType{TaskTypeImportOrder, TaskTypeExportOrder},
			PageSize:           100,
			TimeoutRetryBudget: 1,
			FailureFlagTTL:     10 * time.Minute,
		},
		Lock: LockConfig{
			Backend: LockBackendFile,
			TTL:     2 * time.Hour,
		},
		Runner: RunnerConfig{
			Isolated: true,
		},
		Import: ImportConfig{
			PageSize: 100,
		},
		Cron: CronConfig{
			Schedule: "*/5 * * * *",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	for _, t := range c.Queue.OrderTypes {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid order type %q: %w", t, ErrNotValid)
		}
	}

	if c.Queue.PageSize <= 0 {
		return fmt.Errorf("queue page size must be positive: %w", ErrNotValid)
	}

	if c.Queue.TimeoutRetryBudget < 0 {
		return fmt.Errorf("queue timeout retry budget can't be negative: %w", ErrNotValid)
	}

	if c.Import.PageSize <= 0 {
		return fmt.Errorf("import page size must be positive: %w", ErrNotValid)
	}

	if c.Import.FetchMax < 0 {
		return fmt.Errorf("import fetch max can't be negative: %w", ErrNotValid)
	}

	switch c.Lock.Backend {
	case LockBackendFile, LockBackendSQLite:
	case LockBackendPostgres, LockBackendRedis:
		if c.Lock.DSN == "" {
			return fmt.Errorf("lock backend %q requires a DSN: %w", c.Lock.Backend, ErrNotValid)
		}
	default:
		return fmt.Errorf("unknown lock backend %q: %w", c.Lock.Backend, ErrNotValid)
	}

	return nil
}
