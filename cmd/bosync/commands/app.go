package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/app/dispatch"
	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/lock"
	lockfile "github.com/slok/bosync/internal/lock/file"
	lockpostgres "github.com/slok/bosync/internal/lock/postgres"
	lockredis "github.com/slok/bosync/internal/lock/redis"
	locksqlite "github.com/slok/bosync/internal/lock/sqlite"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/runner"
	"github.com/slok/bosync/internal/storage/sqlite"
	"github.com/slok/bosync/internal/task"
	"github.com/slok/bosync/internal/task/handlers"
	"github.com/slok/bosync/internal/utils/env"
)

// queueApp has the dependencies of the commands that only touch the queue.
type queueApp struct {
	cfg       model.Config
	repo      *sqlite.Repository
	scheduler *schedule.Service
	closers   []func() error
}

func newQueueApp(ctx context.Context, root RootCommand) (*queueApp, error) {
	cfg, err := root.LoadConfig(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: conventions.DBPath(root.DataDir),
		Logger: root.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	scheduler, err := schedule.NewService(schedule.ServiceConfig{
		Repository: repo,
		Logger:     root.Logger,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create schedule service: %w", err)
	}

	return &queueApp{
		cfg:       cfg,
		repo:      repo,
		scheduler: scheduler,
		closers:   []func() error{repo.Close},
	}, nil
}

// Close releases the app resources in reverse creation order.
func (a *queueApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// syncAppOptions customize the synchronization app per command.
type syncAppOptions struct {
	// Progress reports the import pages, defaults to no progress.
	Progress importer.ProgressReporter
	// InProcess runs the tasks in the current process regardless of the config.
	InProcess bool
}

// syncApp has every dependency needed to run tasks.
type syncApp struct {
	*queueApp

	locker     lock.Locker
	handlers   handlers.Config
	dispatcher *dispatch.Service
	commands   runner.Commands
	runner     runner.Runner
	batch      *batch.Service
}

func newSyncApp(ctx context.Context, root RootCommand, opts syncAppOptions) (app *syncApp, err error) {
	qa, err := newQueueApp(ctx, root)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			qa.Close()
		}
	}()

	logger := root.Logger
	cfg := qa.cfg

	installationID, err := conventions.InstallationID(root.DataDir)
	if err != nil {
		return nil, err
	}
	holder := conventions.HolderID(installationID)

	locker, err := newLocker(ctx, root, qa, holder)
	if err != nil {
		return nil, fmt.Errorf("could not create %s locker: %w", cfg.Lock.Backend, err)
	}

	client, err := remote.NewHTTPClient(remote.HTTPClientConfig{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    os.Getenv(cfg.Remote.APIKeyEnv),
		Timeout:   cfg.Remote.Timeout,
		RateLimit: cfg.Remote.RateLimit,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create remote client: %w", err)
	}

	imp, err := importer.NewImporter(importer.ImporterConfig{
		Caller:   client,
		Locker:   locker,
		Progress: opts.Progress,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create importer: %w", err)
	}

	hcfg := handlers.Config{
		Importer: imp,
		Remote:   client,
		Records:  handlers.NewExportingRecordRepository(qa.repo, qa.scheduler, logger),
		Import: handlers.ImportDefaults{
			PageSize: cfg.Import.PageSize,
			FetchMax: cfg.Import.FetchMax,
			Language: cfg.Import.Language,
		},
		DataDir: root.DataDir,
		Logger:  logger,
	}
	registry := task.NewRegistry()
	if err := handlers.Register(registry, hcfg); err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.NewService(dispatch.ServiceConfig{
		Repository:  qa.repo,
		Registry:    registry,
		Scheduler:   qa.scheduler,
		RetryBudget: cfg.Queue.TimeoutRetryBudget,
		PostProcessors: []dispatch.PostProcessor{
			func(ctx context.Context, _ *model.Task) error { return qa.repo.RecountAggregates(ctx) },
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create dispatch service: %w", err)
	}
	commands := runner.Commands{dispatch.CommandName: dispatcher.Command()}

	r, err := newRunner(root, cfg, commands, opts.InProcess)
	if err != nil {
		return nil, fmt.Errorf("could not create runner: %w", err)
	}

	batchSvc, err := batch.NewService(batch.ServiceConfig{
		TaskRepository: qa.repo,
		KVRepository:   qa.repo,
		Locker:         locker,
		Runner:         r,
		Scheduler:      qa.scheduler,
		OrderTypes:     cfg.Queue.OrderTypes,
		PageSize:       cfg.Queue.PageSize,
		FailureFlagTTL: cfg.Queue.FailureFlagTTL,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create batch service: %w", err)
	}

	return &syncApp{
		queueApp:   qa,
		locker:     locker,
		handlers:   hcfg,
		dispatcher: dispatcher,
		commands:   commands,
		runner:     r,
		batch:      batchSvc,
	}, nil
}

func newLocker(ctx context.Context, root RootCommand, qa *queueApp, holder string) (lock.Locker, error) {
	lcfg := qa.cfg.Lock

	switch lcfg.Backend {
	case model.LockBackendSQLite:
		return locksqlite.NewLocker(locksqlite.LockerConfig{
			DB:     qa.repo.DB(),
			Holder: holder,
			Wait:   lcfg.Wait,
			TTL:    lcfg.TTL,
			Logger: root.Logger,
		})

	case model.LockBackendPostgres:
		pool, err := lockpostgres.NewPool(ctx, lcfg.DSN)
		if err != nil {
			return nil, err
		}
		qa.closers = append(qa.closers, func() error { pool.Close(); return nil })
		return lockpostgres.NewLocker(lockpostgres.LockerConfig{
			Pool:   pool,
			Holder: holder,
			Wait:   lcfg.Wait,
			Logger: root.Logger,
		})

	case model.LockBackendRedis:
		client, err := lockredis.NewClient(ctx, lcfg.DSN, os.Getenv(redisPasswordEnv))
		if err != nil {
			return nil, err
		}
		qa.closers = append(qa.closers, client.Close)
		return lockredis.NewLocker(lockredis.LockerConfig{
			Client: client,
			Holder: holder,
			TTL:    lcfg.TTL,
			Wait:   lcfg.Wait,
			Logger: root.Logger,
		})

	default:
		dirs := []string{conventions.LockDir(root.DataDir)}
		if lcfg.Dir != "" {
			dirs = append([]string{lcfg.Dir}, dirs...)
		}
		return lockfile.NewLocker(lockfile.LockerConfig{
			Dirs:   dirs,
			Holder: holder,
			Logger: root.Logger,
		})
	}
}

const redisPasswordEnv = "BOSYNC_REDIS_PASSWORD"

func newRunner(root RootCommand, cfg model.Config, commands runner.Commands, inProcess bool) (runner.Runner, error) {
	if inProcess || !cfg.Runner.Isolated {
		return runner.NewInProcessRunner(runner.InProcessRunnerConfig{
			Commands: commands,
			Logger:   root.Logger,
		})
	}

	childEnv, err := env.ParseSpecs(cfg.Runner.Env)
	if err != nil {
		return nil, fmt.Errorf("invalid runner env: %w", err)
	}

	var echo io.Writer
	if cfg.Runner.EchoOutput {
		echo = root.Stderr
	}

	return runner.NewIsolatedRunner(runner.IsolatedRunnerConfig{
		Args:       childArgs(root),
		Env:        env.ToList(childEnv),
		Timeout:    cfg.Runner.Timeout,
		EchoOutput: echo,
		Logger:     root.Logger,
	})
}

// childArgs are the global flags and the command a child needs to serve an
// invocation with the same data and configuration as the parent.
func childArgs(root RootCommand) []string {
	args := []string{"--data-dir", root.DataDir, "--logger", root.LoggerType, "--no-color"}
	if root.ConfigPath != "" {
		if abs, err := filepath.Abs(root.ConfigPath); err == nil {
			args = append(args, "--config", abs)
		}
	}
	if root.Debug {
		args = append(args, "--debug")
	}

	return append(args, TaskRunCommandName)
}
