package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/runner"
)

// TaskRunCommandName is the command an isolated runner child serves.
const TaskRunCommandName = "task-run"

// TaskRunCommand serves one invocation read from stdin, it's the subprocess
// side of the isolated runner.
type TaskRunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewTaskRunCommand returns the hidden task-run command.
func NewTaskRunCommand(rootCmd *RootCommand, app *kingpin.Application) *TaskRunCommand {
	c := &TaskRunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command(TaskRunCommandName, "Run an invocation read from stdin (used by the isolated runner).").Hidden()

	return c
}

func (c TaskRunCommand) Name() string { return c.Cmd.FullCommand() }

func (c TaskRunCommand) Run(ctx context.Context) error {
	app, err := newSyncApp(ctx, *c.rootCmd, syncAppOptions{InProcess: true})
	if err != nil {
		fmt.Fprintln(c.rootCmd.Stderr, runner.FormatFailure(err))
		return err
	}
	defer app.Close()

	code := runner.ServeChild(ctx, c.rootCmd.Stdin, c.rootCmd.Stderr, app.commands, c.rootCmd.Logger)
	if code != 0 {
		return &ExitError{Code: code}
	}

	return nil
}

// ExitError ends the application with a specific exit code, the failure
// details were already written.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit code %d", e.Code) }
