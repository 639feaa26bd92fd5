package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// LockerConfig is the configuration for the file locker.
type LockerConfig struct {
	// Dirs are the candidate directories, the first writable one is used.
	Dirs []string
	// TempDir is the last candidate directory, defaults to the OS temp dir.
	TempDir string
	Holder  string
	Logger  log.Logger
}

func (c *LockerConfig) defaults() error {
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	c.Dirs = append(append([]string{}, c.Dirs...), c.TempDir)
	if c.Holder == "" {
		c.Holder = fmt.Sprintf("pid:%d", os.Getpid())
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lock.File"})
	return nil
}

// Locker is a filesystem advisory lock implementation of lock.Locker.
//
// The operating system releases the lock when the holder process dies, so a
// lock is never left held by a dead process.
type Locker struct {
	dir    string
	holder string
	logger log.Logger
}

// NewLocker returns a new file locker. It fails when none of the candidate
// directories is writable.
func NewLocker(cfg LockerConfig) (*Locker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir, err := writableDir(cfg.Dirs)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Debugf("Using %s lock directory", dir)

	return &Locker{
		dir:    dir,
		holder: cfg.Holder,
		logger: cfg.Logger,
	}, nil
}

// Dir returns the directory used for the lock files.
func (l *Locker) Dir() string { return l.dir }

// Acquire takes a non blocking exclusive lock, if already held it returns model.ErrLockActive.
func (l *Locker) Acquire(ctx context.Context, scope string) (lock.Lock, error) {
	path := filepath.Join(l.dir, conventions.LockFileName(lock.ScopeKey(scope)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open lock file %s: %w", path, err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("scope %q: %w", scope, model.ErrLockActive)
		}
		return nil, fmt.Errorf("could not lock %s: %w", path, err)
	}

	// Informative only, the flock is the source of truth.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(l.holder+"\n"), 0)
	}

	l.logger.Debugf("Lock %q acquired", scope)

	return &fileLock{scope: scope, holder: l.holder, f: f, logger: l.logger}, nil
}

type fileLock struct {
	scope  string
	holder string
	f      *os.File
	once   sync.Once
	logger log.Logger
}

func (l *fileLock) Scope() string  { return l.scope }
func (l *fileLock) Holder() string { return l.holder }

func (l *fileLock) Release() error {
	var err error
	l.once.Do(func() {
		_ = l.f.Truncate(0)
		if uerr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); uerr != nil {
			err = fmt.Errorf("could not unlock: %w", uerr)
		}
		// Closing the descriptor releases the flock in any case.
		if cerr := l.f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("could not close lock file: %w", cerr)
		}
		l.logger.Debugf("Lock %q released", l.scope)
	})
	return err
}

func writableDir(candidates []string) (string, error) {
	tried := []string{}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		tried = append(tried, dir)

		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		if err := unix.Access(dir, unix.W_OK); err != nil {
			continue
		}
		return dir, nil
	}

	return "", fmt.Errorf("no writable lock directory, tried: %s", strings.Join(tried, ", "))
}
