package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/app/batch"
)

type ProcessCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	limit     int
	failFast  bool
	typeGroup string
	inProcess bool
	format    string
}

// NewProcessCommand returns the process command.
func NewProcessCommand(rootCmd *RootCommand, app *kingpin.Application) *ProcessCommand {
	c := &ProcessCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("process", "Run a batch of pending tasks, order tasks first.")
	c.Cmd.Flag("limit", "Maximum number of tasks processed, 0 is unlimited.").Short('l').Default("0").IntVar(&c.limit)
	c.Cmd.Flag("fail-fast", "Stop the batch on the first failed task.").BoolVar(&c.failFast)
	c.Cmd.Flag("type-group", "Only process the tasks of a type group (e.g. import, export).").StringVar(&c.typeGroup)
	c.Cmd.Flag("in-process", "Run the tasks in this process instead of isolated subprocesses.").BoolVar(&c.inProcess)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ProcessCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProcessCommand) Run(ctx context.Context) error {
	app, err := newSyncApp(ctx, *c.rootCmd, syncAppOptions{InProcess: c.inProcess})
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.batch.Execute(ctx, batch.Request{
		Limit:     c.limit,
		FailFast:  c.failFast,
		TypeGroup: c.typeGroup,
	})
	if res != nil {
		if perr := newPrinter(c.format, c.rootCmd.Stdout).PrintBatchResult(*res); perr != nil {
			return fmt.Errorf("could not print batch result: %w", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	return nil
}
