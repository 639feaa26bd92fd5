package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// LockerConfig is the configuration for the Postgres advisory locker.
type LockerConfig struct {
	Pool   *pgxpool.Pool
	Holder string
	// Wait is the maximum time waiting for a held lock, 0 fails right away.
	Wait         time.Duration
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *LockerConfig) defaults() error {
	if c.Pool == nil {
		return fmt.Errorf("pool is required")
	}
	if c.Holder == "" {
		c.Holder = fmt.Sprintf("pid:%d", os.Getpid())
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lock.Postgres"})
	return nil
}

// Locker is a Postgres session advisory lock implementation of lock.Locker.
//
// Every held lock pins a pooled connection, Postgres releases the lock when
// the session ends so a crashed holder never keeps it.
type Locker struct {
	pool   *pgxpool.Pool
	holder string
	wait   time.Duration
	poll   time.Duration
	logger log.Logger
}

// NewLocker returns a new Postgres advisory locker.
func NewLocker(cfg LockerConfig) (*Locker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Locker{
		pool:   cfg.Pool,
		holder: cfg.Holder,
		wait:   cfg.Wait,
		poll:   cfg.PollInterval,
		logger: cfg.Logger,
	}, nil
}

// NewPool connects a pool to the DSN and checks it.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not ping postgres: %w", err)
	}

	return pool, nil
}

// Acquire takes the advisory lock of the scope on a dedicated connection.
func (l *Locker) Acquire(ctx context.Context, scope string) (lock.Lock, error) {
	scope = lock.ScopeKey(scope)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not acquire postgres connection: %w", err)
	}

	deadline := time.Now().Add(l.wait)
	for {
		var ok bool
		err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, scope).Scan(&ok)
		if err != nil {
			conn.Release()
			return nil, fmt.Errorf("could not try advisory lock: %w", err)
		}
		if ok {
			l.logger.Debugf("Lock %q acquired", scope)
			return &advisoryLock{scope: scope, holder: l.holder, conn: conn, logger: l.logger}, nil
		}

		if l.wait <= 0 {
			conn.Release()
			return nil, fmt.Errorf("scope %q: %w", scope, model.ErrLockActive)
		}
		if !time.Now().Before(deadline) {
			conn.Release()
			return nil, fmt.Errorf("scope %q after %s: %w", scope, l.wait, model.ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}

type advisoryLock struct {
	scope  string
	holder string
	conn   *pgxpool.Conn
	once   sync.Once
	err    error
	logger log.Logger
}

func (l *advisoryLock) Scope() string  { return l.scope }
func (l *advisoryLock) Holder() string { return l.holder }

func (l *advisoryLock) Release() error {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var ok bool
		err := l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, l.scope).Scan(&ok)
		if err != nil || !ok {
			// Closing the session drops the lock, don't return a locked connection to the pool.
			_ = l.conn.Conn().Close(ctx)
			if err != nil {
				l.err = fmt.Errorf("could not unlock advisory lock: %w", err)
			}
		}
		l.conn.Release()
		l.logger.Debugf("Lock %q released", l.scope)
	})
	return l.err
}
