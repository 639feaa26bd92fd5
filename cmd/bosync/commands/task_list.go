package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/app/list"
)

// TaskListCommand lists the queued tasks.
type TaskListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	filters taskFilterFlags
	format  string
}

// NewTaskListCommand returns the task list command.
func NewTaskListCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskListCommand {
	c := &TaskListCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("list", "List tasks.")
	c.filters.register(c.Cmd)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c TaskListCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskListCommand) Run(ctx context.Context) error {
	f, err := c.filters.filter()
	if err != nil {
		return err
	}

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

	tasks, err := svc.Run(ctx, list.Request{Filter: f})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	return nil
}
