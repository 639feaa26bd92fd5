package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/app/status"
	"github.com/slok/bosync/internal/task/handlers"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show the synchronization status.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	app, err := newQueueApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := status.NewService(status.ServiceConfig{
		TaskRepository:   app.repo,
		KVRepository:     app.repo,
		RecordRepository: app.repo,
		RecordKinds:      handlers.Kinds(),
		Logger:           c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	st, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("could not get status: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintStatus(*st); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}
