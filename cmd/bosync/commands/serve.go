package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/app/cron"
	bosynchttp "github.com/slok/bosync/internal/http"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr string
	schedule   string
	noCron     bool
	limit      int
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Serve the task HTTP API and run the batches periodically.")
	c.Cmd.Flag("listen-addr", "HTTP listen address, overrides the configured one.").StringVar(&c.listenAddr)
	c.Cmd.Flag("schedule", "Batch cron schedule, overrides the configured one.").StringVar(&c.schedule)
	c.Cmd.Flag("no-cron", "Only serve the HTTP API.").BoolVar(&c.noCron)
	c.Cmd.Flag("limit", "Maximum number of tasks per batch, 0 is unlimited.").Default("0").IntVar(&c.limit)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	app, err := newSyncApp(ctx, *c.rootCmd, syncAppOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	listenAddr := app.cfg.Server.ListenAddr
	if c.listenAddr != "" {
		listenAddr = c.listenAddr
	}
	schedule := app.cfg.Cron.Schedule
	if c.schedule != "" {
		schedule = c.schedule
	}

	router, err := bosynchttp.NewRouter(bosynchttp.RouterConfig{
		Scheduler:      app.scheduler,
		TaskRepository: app.repo,
		KVRepository:   app.repo,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create router: %w", err)
	}

	var g run.Group

	// HTTP API.
	{
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Add(
			func() error {
				logger.Infof("HTTP API listening on %s", listenAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(ctx); err != nil {
					logger.Errorf("Could not shut down HTTP server: %s", err)
				}
			},
		)
	}

	// Periodic batches.
	if !c.noCron {
		cronSvc, err := cron.NewService(cron.ServiceConfig{
			Executor: app.batch,
			Schedule: schedule,
			Request:  batch.Request{Limit: c.limit},
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("could not create cron service: %w", err)
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				logger.Infof("Running batches on %q", schedule)
				return cronSvc.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Parent cancellation (signals).
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
