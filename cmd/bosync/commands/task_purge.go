package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// TaskPurgeCommand deletes the selected tasks.
type TaskPurgeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	all     bool
	filters taskFilterFlags
}

// NewTaskPurgeCommand returns the task purge command.
func NewTaskPurgeCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskPurgeCommand {
	c := &TaskPurgeCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("purge", "Delete the selected tasks.")
	c.Cmd.Flag("all", "Delete every task.").BoolVar(&c.all)
	c.filters.register(c.Cmd)

	return c
}

func (c TaskPurgeCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskPurgeCommand) Run(ctx context.Context) error {
	if c.filters.empty() && !c.all {
		return fmt.Errorf("select the tasks to purge or use --all")
	}

	f, err := c.filters.filter()
	if err != nil {
		return err
	}

	app, err := newQueueApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.scheduler.Purge(ctx, f)
	if err != nil {
		return fmt.Errorf("could not purge tasks: %w", err)
	}

	return newPrinter("table", c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("%d tasks purged", n))
}
