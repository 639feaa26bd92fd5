package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// LockerConfig is the configuration for the database row locker.
type LockerConfig struct {
	// DB must have the bosync migrations applied.
	DB     *sql.DB
	Holder string
	// Wait is the maximum time waiting for a held lock, 0 fails right away.
	Wait time.Duration
	// TTL after which a lock is considered abandoned.
	TTL          time.Duration
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *LockerConfig) defaults() error {
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.TTL <= 0 {
		c.TTL = 2 * time.Hour
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lock.SQLite"})

	return nil
}

// Locker is a database row implementation of lock.Locker with a bounded wait.
//
// Rows of holders that are dead on the same host or that passed their TTL are
// taken over.
type Locker struct {
	db       *sql.DB
	holder   string
	hostname string
	pid      int
	wait     time.Duration
	ttl      time.Duration
	poll     time.Duration
	logger   log.Logger
}

// NewLocker returns a new database row locker.
func NewLocker(cfg LockerConfig) (*Locker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	pid := os.Getpid()
	if cfg.Holder == "" {
		cfg.Holder = fmt.Sprintf("%s:%d", hostname, pid)
	}

	return &Locker{
		db:       cfg.DB,
		holder:   cfg.Holder,
		hostname: hostname,
		pid:      pid,
		wait:     cfg.Wait,
		ttl:      cfg.TTL,
		poll:     cfg.PollInterval,
		logger:   cfg.Logger,
	}, nil
}

// Acquire inserts the scope row, waiting up to the configured time if held.
func (l *Locker) Acquire(ctx context.Context, scope string) (lock.Lock, error) {
	scope = lock.ScopeKey(scope)
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.tryAcquire(ctx, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			l.logger.Debugf("Lock %q acquired", scope)
			return &rowLock{scope: scope, holder: l.holder, locker: l}, nil
		}

		if l.wait <= 0 {
			return nil, fmt.Errorf("scope %q: %w", scope, model.ErrLockActive)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("scope %q after %s: %w", scope, l.wait, model.ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

func (l *Locker) tryAcquire(ctx context.Context, scope string) (bool, error) {
	ok, err := l.insert(ctx, scope)
	if err != nil || ok {
		return ok, err
	}

	// Held, check if the holder abandoned it.
	var (
		holder, hostname string
		pid              int
		expiresAt        int64
	)
	err = l.db.QueryRowContext(ctx, `SELECT holder, hostname, pid, expires_at FROM locks WHERE scope = ?`, scope).
		Scan(&holder, &hostname, &pid, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l.insert(ctx, scope)
	}
	if err != nil {
		return false, fmt.Errorf("could not get lock row: %w", err)
	}

	stale := time.Now().Unix() >= expiresAt || (hostname == l.hostname && !processAlive(pid))
	if !stale {
		return false, nil
	}

	l.logger.Warningf("Taking over abandoned lock %q from %s", scope, holder)
	_, err = l.db.ExecContext(ctx, `DELETE FROM locks WHERE scope = ? AND holder = ? AND pid = ? AND expires_at = ?`, scope, holder, pid, expiresAt)
	if err != nil {
		return false, fmt.Errorf("could not delete abandoned lock row: %w", err)
	}

	return l.insert(ctx, scope)
}

func (l *Locker) insert(ctx context.Context, scope string) (bool, error) {
	now := time.Now()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO locks (scope, holder, hostname, pid, acquired_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scope) DO NOTHING`,
		scope, l.holder, l.hostname, l.pid, now.Unix(), now.Add(l.ttl).Unix())
	if err != nil {
		return false, fmt.Errorf("could not insert lock row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get affected rows: %w", err)
	}
	return n == 1, nil
}

func (l *Locker) release(scope string) error {
	_, err := l.db.ExecContext(context.Background(), `DELETE FROM locks WHERE scope = ? AND holder = ?`, scope, l.holder)
	if err != nil {
		return fmt.Errorf("could not delete lock row: %w", err)
	}
	l.logger.Debugf("Lock %q released", scope)
	return nil
}

type rowLock struct {
	scope  string
	holder string
	locker *Locker
	once   sync.Once
	err    error
}

func (l *rowLock) Scope() string  { return l.scope }
func (l *rowLock) Holder() string { return l.holder }

func (l *rowLock) Release() error {
	l.once.Do(func() { l.err = l.locker.release(l.scope) })
	return l.err
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
