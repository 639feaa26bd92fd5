package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
)

// IsChild returns true when the current process is an isolated runner child.
func IsChild() bool {
	return os.Getenv(conventions.ChildEnvVar) == "1"
}

// ServeChild runs the invocation read from stdin and returns the process exit
// code. On failure the error kinds are printed on stderr.
func ServeChild(ctx context.Context, stdin io.Reader, stderr io.Writer, commands Commands, logger log.Logger) int {
	if logger == nil {
		logger = log.Noop
	}

	inv, err := Decode(stdin)
	if err != nil {
		fmt.Fprintln(stderr, FormatFailure(err))
		return 2
	}

	cmd, err := commands.get(inv.Name)
	if err != nil {
		fmt.Fprintln(stderr, FormatFailure(err))
		return 2
	}

	logger.WithValues(log.Kv{"invocation": inv.Name}).Debugf("Running child invocation")
	if err := cmd(ctx, inv); err != nil {
		fmt.Fprintln(stderr, FormatFailure(err))
		return 1
	}

	return 0
}
