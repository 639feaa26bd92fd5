package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/bosync/cmd/bosync/commands"
	"github.com/slok/bosync/internal/log"
	loglogrus "github.com/slok/bosync/internal/log/logrus"
)

// Version is the application version (set via ldflags).
var Version = "dev"

var printerCommands = map[string]bool{
	"status":    true,
	"task list": true,
	"task show": true,
}

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("bosync", "Backoffice synchronization task queue.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	taskCmd := commands.NewTaskCommand(app)
	registered := []commands.Command{
		commands.NewScheduleCommand(rootCmd, app),
		commands.NewRescheduleCommand(rootCmd, app),
		commands.NewProcessCommand(rootCmd, app),
		commands.NewImportCommand(rootCmd, app),
		commands.NewStatusCommand(rootCmd, app),
		commands.NewServeCommand(rootCmd, app),
		commands.NewTaskRunCommand(rootCmd, app),
		commands.NewTaskListCommand(rootCmd, taskCmd),
		commands.NewTaskShowCommand(rootCmd, taskCmd),
		commands.NewTaskMarkAsCommand(rootCmd, taskCmd),
		commands.NewTaskPurgeCommand(rootCmd, taskCmd),
	}
	cmds := make(map[string]commands.Command, len(registered))
	for _, c := range registered {
		cmds[c.Name()] = c
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Read only commands print tables or JSON to stdout, logs would only add noise
	// unless debugging.
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	rootCmd.Logger = getLogger(ctx, *rootCmd)
	if cmdName == commands.TaskRunCommandName {
		// Child lines are re-logged by the parent, the pid tells siblings apart.
		rootCmd.Logger = rootCmd.Logger.WithValues(log.Kv{"pid": os.Getpid()})
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(ctx context.Context, config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	// Stdout is reserved for printers.
	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		// Isolated runner children already reported the failure on stderr.
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
