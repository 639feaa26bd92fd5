package lock

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/bosync/internal/log"
)

// Lock is an acquired exclusive token for a scope.
type Lock interface {
	Scope() string
	Holder() string
	// Release frees the lock, it's safe to call more than once.
	Release() error
}

// Locker acquires exclusive locks by scope.
//
// When the scope is already held Acquire returns model.ErrLockActive, or
// model.ErrLockTimeout when the implementation waited a bounded time.
type Locker interface {
	Acquire(ctx context.Context, scope string) (Lock, error)
}

// ScopeKey converts a job class name into a scope key usable by every backend.
//
// Lowercase letters, digits, '-' and '.' are kept, any other byte is escaped
// as '_' plus its hex value, so different names never share a key.
func ScopeKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "_"
	}

	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}

// WithLock runs fn holding the lock of the scope, the lock is released on every exit path.
// The locker keys the scope itself.
func WithLock(ctx context.Context, locker Locker, scope string, logger log.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = log.Noop
	}

	l, err := locker.Acquire(ctx, scope)
	if err != nil {
		return fmt.Errorf("could not acquire %q lock: %w", scope, err)
	}
	defer func() {
		if rerr := l.Release(); rerr != nil {
			logger.Warningf("Could not release %q lock: %s", scope, rerr)
		}
	}()

	return fn(ctx)
}
