package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/runner"
)

// CommandName is the runner command that dispatches a task.
const CommandName = "dispatch"

// Invocation returns the runner invocation that dispatches the task.
func Invocation(t model.Task) model.Invocation {
	return model.Invocation{
		Name:      CommandName,
		Arguments: []any{t.ID, t.Name},
	}
}

// Command returns the runner command that dispatches the task of an Invocation.
func (s *Service) Command() runner.CommandFunc {
	return func(ctx context.Context, inv model.Invocation) error {
		if len(inv.Arguments) != 2 {
			return fmt.Errorf("dispatch requires task id and name arguments, got %d: %w", len(inv.Arguments), model.ErrNotValid)
		}

		id, err := int64Arg(inv.Arguments[0])
		if err != nil {
			return err
		}

		name, ok := inv.Arguments[1].(string)
		if !ok {
			return fmt.Errorf("task name argument must be a string: %w", model.ErrNotValid)
		}

		return s.Dispatch(ctx, id, name)
	}
}

func int64Arg(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case json.Number:
		id, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid task id %q: %w", n, model.ErrNotValid)
		}
		return id, nil
	}
	return 0, fmt.Errorf("invalid task id type %T: %w", v, model.ErrNotValid)
}
