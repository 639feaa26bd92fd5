package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"

	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

const keyPrefix = "bosync:lock:"

// releaseScript only deletes the key when it's still owned by the token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockerConfig is the configuration for the Redis locker.
type LockerConfig struct {
	Client *redis.Client
	Holder string
	// TTL frees the lock of holders that died without releasing it.
	TTL time.Duration
	// Wait is the maximum time waiting for a held lock, 0 fails right away.
	Wait         time.Duration
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *LockerConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}
	if c.Holder == "" {
		c.Holder = fmt.Sprintf("pid:%d", os.Getpid())
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lock.Redis"})
	return nil
}

// Locker is a Redis implementation of lock.Locker based on SET NX with a TTL.
type Locker struct {
	client *redis.Client
	holder string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger log.Logger
}

// NewLocker returns a new Redis locker.
func NewLocker(cfg LockerConfig) (*Locker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Locker{
		client: cfg.Client,
		holder: cfg.Holder,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		poll:   cfg.PollInterval,
		logger: cfg.Logger,
	}, nil
}

// NewClient returns a Redis client for the address and checks it.
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("could not ping redis: %w", err)
	}

	return client, nil
}

// Acquire sets the scope key if missing, waiting up to the configured time if held.
func (l *Locker) Acquire(ctx context.Context, scope string) (lock.Lock, error) {
	scope = lock.ScopeKey(scope)
	key := keyPrefix + scope
	// Unique per acquisition so a holder can't release a lock it lost by TTL.
	token := l.holder + "/" + ulid.Make().String()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("could not set lock key: %w", err)
		}
		if ok {
			l.logger.Debugf("Lock %q acquired", scope)
			return &keyLock{scope: scope, holder: l.holder, key: key, token: token, client: l.client, logger: l.logger}, nil
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

type keyLock struct {
	scope  string
	holder string
	key    string
	token  string
	client *redis.Client
	once   sync.Once
	err    error
	logger log.Logger
}

func (l *keyLock) Scope() string  { return l.scope }
func (l *keyLock) Holder() string { return l.holder }

func (l *keyLock) Release() error {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
		if err != nil {
			l.err = fmt.Errorf("could not delete lock key: %w", err)
			return
		}
		if n == 0 {
			l.logger.Warningf("Lock %q was already lost when releasing", l.scope)
		}
		l.logger.Debugf("Lock %q released", l.scope)
	})
	return l.err
}
