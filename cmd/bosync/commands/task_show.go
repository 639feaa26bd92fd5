package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/app/list"
)

// TaskShowCommand shows the details of a task.
type TaskShowCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	idOrName string
	format   string
}

// NewTaskShowCommand returns the task show command.
func NewTaskShowCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskShowCommand {
	c := &TaskShowCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("show", "Show a task with its meta data and error output.")
	c.Cmd.Arg("id-or-name", "Task id or name (e.g. import-order::42).").Required().StringVar(&c.idOrName)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskShowCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskShowCommand) Run(ctx context.Context) error {
	app, err := newQueueApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := list.NewService(list.ServiceConfig{
		Repository: app.repo,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	t, err := svc.Get(ctx, c.idOrName)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTask(*t); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	return nil
}
