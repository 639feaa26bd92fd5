package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/model"
)

// TaskMarkAsCommand changes the status of the selected tasks.
type TaskMarkAsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	status  string
	filters taskFilterFlags
}

// NewTaskMarkAsCommand returns the task mark-as command.
func NewTaskMarkAsCommand(rootCmd *RootCommand, taskCmd *kingpin.CmdClause) *TaskMarkAsCommand {
	c := &TaskMarkAsCommand{rootCmd: rootCmd}

	c.Cmd = taskCmd.Command("mark-as", "Set the status of the selected tasks (e.g. retry failed tasks marking them as new).")
	c.Cmd.Arg("status", "New status.").Required().EnumVar(&c.status,
		string(model.TaskStatusNew), string(model.TaskStatusProcessing), string(model.TaskStatusFailed), string(model.TaskStatusSuccess))
	c.filters.register(c.Cmd)

	return c
}

func (c TaskMarkAsCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskMarkAsCommand) Run(ctx context.Context) error {
	if c.filters.empty() {
		return fmt.Errorf("at least one task selector is required (--id, --status, --type, --group or --target)")
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

	n, err := app.scheduler.MarkAs(ctx, f, model.TaskStatus(c.status))
	if err != nil {
		return fmt.Errorf("could not mark tasks: %w", err)
	}

	return newPrinter("table", c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("%d tasks marked as %s", n, c.status))
}
