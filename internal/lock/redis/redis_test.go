package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/slok/bosync/internal/conventions"
	lockredis "github.com/slok/bosync/internal/lock/redis"
	"github.com/slok/bosync/internal/model"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv(conventions.IntegrationEnvVar) != "true" {
		t.Skipf("Skipping integration test, set %s=true to run", conventions.IntegrationEnvVar)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := lockredis.NewClient(ctx, host+":"+port.Port(), "")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestLockerMutualExclusion(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l1, err := lockredis.NewLocker(lockredis.LockerConfig{Client: client, Holder: "holder-1"})
	require.NoError(t, err)
	l2, err := lockredis.NewLocker(lockredis.LockerConfig{Client: client, Holder: "holder-2"})
	require.NoError(t, err)

	lk, err := l1.Acquire(ctx, "batch-process")
	require.NoError(t, err)

	_, err = l2.Acquire(ctx, "batch-process")
	assert.ErrorIs(t, err, model.ErrLockActive)

	require.NoError(t, lk.Release())
	lk2, err := l2.Acquire(ctx, "batch-process")
	require.NoError(t, err)
	require.NoError(t, lk2.Release())
}

func TestLockerExpiredHolderCantReleaseNewLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	l1, err := lockredis.NewLocker(lockredis.LockerConfig{Client: client, TTL: 100 * time.Millisecond})
	require.NoError(t, err)
	l2, err := lockredis.NewLocker(lockredis.LockerConfig{Client: client, Wait: 2 * time.Second, PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)

	lk1, err := l1.Acquire(ctx, "batch-process")
	require.NoError(t, err)

	// The TTL frees the lock of a holder that never released it.
	lk2, err := l2.Acquire(ctx, "batch-process")
	require.NoError(t, err)

	// The old holder release doesn't remove the new holder lock.
	require.NoError(t, lk1.Release())
	_, err = l1.Acquire(ctx, "batch-process")
	assert.ErrorIs(t, err, model.ErrLockActive)

	require.NoError(t, lk2.Release())
}
