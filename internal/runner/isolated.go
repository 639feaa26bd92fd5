package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/utils/env"
)

// maxCapture is the maximum amount of child output kept for a SubProcessFailure.
const maxCapture = 64 * 1024

// maxLine is the longest child output line kept, longer lines are truncated.
const maxLine = 64 * 1024

// IsolatedRunnerConfig is the configuration for the isolated runner.
type IsolatedRunnerConfig struct {
	// Executable defaults to the current binary.
	Executable string
	// Args are the arguments that make the executable serve a child invocation.
	Args []string
	// Env is added to the current process environment.
	Env []string
	// Timeout kills the child after it, 0 is unbounded.
	Timeout time.Duration
	// EchoOutput receives the child stdout, when nil stdout is logged.
	EchoOutput io.Writer
	Logger     log.Logger
}

func (c *IsolatedRunnerConfig) defaults() error {
	if c.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("could not find bosync binary: %w", err)
		}
		c.Executable = exe
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner.Isolated"})
	return nil
}

// IsolatedRunner runs every invocation in a new child process of the same
// binary, the payload is sent through the child stdin.
type IsolatedRunner struct {
	executable string
	args       []string
	env        []string
	timeout    time.Duration
	echo       io.Writer
	logger     log.Logger
}

// NewIsolatedRunner returns a new isolated runner.
func NewIsolatedRunner(cfg IsolatedRunnerConfig) (*IsolatedRunner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &IsolatedRunner{
		executable: cfg.Executable,
		args:       cfg.Args,
		env:        cfg.Env,
		timeout:    cfg.Timeout,
		echo:       cfg.EchoOutput,
		logger:     cfg.Logger,
	}, nil
}

// Run spawns the child and waits for it. A non zero exit returns a *SubProcessFailure.
func (r *IsolatedRunner) Run(ctx context.Context, inv model.Invocation) (int, error) {
	payload, err := Encode(inv)
	if err != nil {
		return -1, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.executable, r.args...)
	// Bulk imports run as long and use as much memory as they need.
	childEnv := env.MergeMaps(env.FromList(os.Environ()), env.FromList(r.env))
	childEnv = env.MergeMaps(childEnv, map[string]string{"GOMEMLIMIT": "off", conventions.ChildEnvVar: "1"})
	cmd.Env = env.ToList(childEnv)
	cmd.Stdin = bytes.NewReader(payload)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("could not get child stdout: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("could not get child stderr: %w", err)
	}

	invID := ulid.Make().String()
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("could not start child process: %w", err)
	}
	logger := r.logger.WithValues(log.Kv{"invocation": inv.Name, "invocation-id": invID, "child-pid": cmd.Process.Pid})
	logger.Debugf("Child process started")

	stdout := &tailBuffer{max: maxCapture}
	stderr := &tailBuffer{max: maxCapture}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.stream(stderrPipe, stderr, nil, logger.Infof)
	}()
	go func() {
		defer wg.Done()
		r.stream(stdoutPipe, stdout, r.echo, logger.Infof)
	}()
	// Pipes must be drained before waiting.
	wg.Wait()

	waitErr := cmd.Wait()
	if waitErr == nil {
		logger.Debugf("Child process finished in %s", time.Since(start))
		return 0, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}

	failure := &SubProcessFailure{
		Invocation: inv.Name,
		ExitCode:   exitCode,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
	}
	if ctx.Err() != nil {
		failure.Err = fmt.Errorf("child killed: %w", ctx.Err())
	} else if exitErr == nil {
		failure.Err = waitErr
	}

	return exitCode, failure
}

// stream copies every line of the child output to the capture buffer and
// to the echo writer, or logs it when there is no echo writer.
//
// Lines longer than maxLine are truncated and their remainder discarded, the
// pipe is always read until EOF so the child never blocks writing to it.
func (r *IsolatedRunner) stream(src io.Reader, capture *tailBuffer, echo io.Writer, logf func(string, ...any)) {
	reader := bufio.NewReaderSize(src, maxLine)
	defer func() { _, _ = io.Copy(io.Discard, reader) }()

	for {
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			return
		}

		text := string(line)
		if isPrefix {
			for isPrefix && err == nil {
				_, isPrefix, err = reader.ReadLine()
			}
			text += " [truncated]"
		}

		capture.WriteLine(text)
		if echo != nil {
			fmt.Fprintln(echo, text)
		} else {
			logf("%s", text)
		}

		if err != nil {
			return
		}
	}
}

// tailBuffer keeps the last bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
	mu  sync.Mutex
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.WriteString(line)
	t.buf.WriteByte('\n')
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
