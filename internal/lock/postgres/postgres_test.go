package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/slok/bosync/internal/conventions"
	lockpostgres "github.com/slok/bosync/internal/lock/postgres"
	"github.com/slok/bosync/internal/model"
)

func setupPostgres(t *testing.T) string {
	t.Helper()
	if os.Getenv(conventions.IntegrationEnvVar) != "true" {
		t.Skipf("Skipping integration test, set %s=true to run", conventions.IntegrationEnvVar)
	}

	ctx := context.Background()
	container, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15"),
		tcpostgres.WithDatabase("bosync_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return dsn
}

func TestLockerMutualExclusion(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	// Different pools act as different processes.
	pool1, err := lockpostgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool1.Close()
	pool2, err := lockpostgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool2.Close()

	l1, err := lockpostgres.NewLocker(lockpostgres.LockerConfig{Pool: pool1, Holder: "holder-1"})
	require.NoError(t, err)
	l2, err := lockpostgres.NewLocker(lockpostgres.LockerConfig{Pool: pool2, Holder: "holder-2", Wait: 100 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	lk, err := l1.Acquire(ctx, "batch-process")
	require.NoError(t, err)

	_, err = l2.Acquire(ctx, "batch-process")
	assert.ErrorIs(t, err, model.ErrLockTimeout)

	require.NoError(t, lk.Release())
	lk2, err := l2.Acquire(ctx, "batch-process")
	require.NoError(t, err)
	require.NoError(t, lk2.Release())
}

func TestLockerReleasedOnSessionEnd(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	pool1, err := lockpostgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool1.Close()
	pool2, err := lockpostgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool2.Close()

	l1, err := lockpostgres.NewLocker(lockpostgres.LockerConfig{Pool: pool1})
	require.NoError(t, err)
	l2, err := lockpostgres.NewLocker(lockpostgres.LockerConfig{Pool: pool2})
	require.NoError(t, err)

	_, err = l1.Acquire(ctx, "batch-process")
	require.NoError(t, err)

	// Kill the holder session like a crashed process would.
	_, err = pool2.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_locks WHERE locktype = 'advisory' AND pid <> pg_backend_pid()`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lk, err := l2.Acquire(ctx, "batch-process")
		if err != nil {
			return false
		}
		_ = lk.Release()
		return true
	}, 5*time.Second, 50*time.Millisecond)
}
