package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// Runner executes a named invocation and returns its exit code.
type Runner interface {
	Run(ctx context.Context, inv model.Invocation) (exitCode int, err error)
}

// CommandFunc is a unit of work that can be invoked by name.
type CommandFunc func(ctx context.Context, inv model.Invocation) error

// Commands is the registry of invocable commands by name.
type Commands map[string]CommandFunc

// Names returns the sorted registered command names.
func (c Commands) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c Commands) get(name string) (CommandFunc, error) {
	cmd, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("command %q: %w", name, model.ErrUnknownTaskType)
	}
	return cmd, nil
}

// Encode serializes an invocation into the subprocess transport payload.
func Encode(inv model.Invocation) ([]byte, error) {
	if inv.Name == "" {
		return nil, fmt.Errorf("invocation name is required: %w", model.ErrNotValid)
	}
	if inv.Arguments == nil {
		inv.Arguments = []any{}
	}
	if inv.AssocArguments == nil {
		inv.AssocArguments = map[string]any{}
	}

	data, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("could not marshal invocation: %w", err)
	}

	return data, nil
}

// Decode deserializes a subprocess transport payload. Numbers are kept as
// json.Number so they are encoded back exactly as received.
func Decode(r io.Reader) (model.Invocation, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var inv model.Invocation
	if err := dec.Decode(&inv); err != nil {
		return model.Invocation{}, fmt.Errorf("could not unmarshal invocation: %s: %w", err, model.ErrNotValid)
	}
	if inv.Name == "" {
		return model.Invocation{}, fmt.Errorf("invocation name is required: %w", model.ErrNotValid)
	}

	return inv, nil
}

// DecodeBytes is a helper to decode an in memory payload.
func DecodeBytes(data []byte) (model.Invocation, error) {
	return Decode(bytes.NewReader(data))
}

// InProcessRunnerConfig is the configuration for the in process runner.
type InProcessRunnerConfig struct {
	Commands Commands
	Logger   log.Logger
}

func (c *InProcessRunnerConfig) defaults() error {
	if len(c.Commands) == 0 {
		return fmt.Errorf("commands are required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "runner.InProcess"})
	return nil
}

// InProcessRunner calls the commands directly in the current process.
type InProcessRunner struct {
	commands Commands
	logger   log.Logger
}

// NewInProcessRunner returns a new in process runner.
func NewInProcessRunner(cfg InProcessRunnerConfig) (*InProcessRunner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &InProcessRunner{
		commands: cfg.Commands,
		logger:   cfg.Logger,
	}, nil
}

// Run executes the invocation, a failure returns exit code 1 and the command error.
func (r *InProcessRunner) Run(ctx context.Context, inv model.Invocation) (int, error) {
	cmd, err := r.commands.get(inv.Name)
	if err != nil {
		return 1, err
	}

	r.logger.Debugf("Running %s %v", inv.Name, inv.Arguments)
	if err := cmd(ctx, inv); err != nil {
		return 1, err
	}

	return 0, nil
}
