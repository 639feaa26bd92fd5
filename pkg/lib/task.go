package lib

import (
	"context"
	"fmt"

	"github.com/slok/bosync/internal/app/list"
	"github.com/slok/bosync/internal/model"
)

// ScheduleTask enqueues a task. When a new task with the same name
// (type and target) is pending, that one is returned unless ForceAdd is set.
func (c *Client) ScheduleTask(ctx context.Context, opts ScheduleTaskOpts) (*Task, error) {
	t, err := c.scheduler.Schedule(ctx, toInternalScheduleRequest(opts))
	if err != nil {
		return nil, mapError(err)
	}

	out := fromInternalTask(*t)
	return &out, nil
}

// RescheduleTask replaces every task with the same name by a fresh new one.
func (c *Client) RescheduleTask(ctx context.Context, opts ScheduleTaskOpts) (*Task, error) {
	t, err := c.scheduler.Reschedule(ctx, toInternalScheduleRequest(opts))
	if err != nil {
		return nil, mapError(err)
	}

	out := fromInternalTask(*t)
	return &out, nil
}

// GetTask returns a task by its numeric ID or by its name. When looking up by
// name the active task is preferred over the most recent one.
func (c *Client) GetTask(ctx context.Context, idOrName string) (*Task, error) {
	t, err := c.lister.Get(ctx, idOrName)
	if err != nil {
		return nil, mapError(err)
	}

	out := fromInternalTask(*t)
	return &out, nil
}

// ListTasks returns the tasks matching opts. A nil opts lists all tasks.
func (c *Client) ListTasks(ctx context.Context, opts *ListTasksOpts) ([]Task, error) {
	f, err := validateListOpts(opts)
	if err != nil {
		return nil, err
	}

	ts, err := c.lister.Run(ctx, list.Request{Filter: f})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(ts), nil
}

// MarkTasksAs sets the status of the tasks matching opts and returns how many changed.
// At least one filter is required.
func (c *Client) MarkTasksAs(ctx context.Context, opts ListTasksOpts, status TaskStatus) (int64, error) {
	if err := model.TaskStatus(status).Validate(); err != nil {
		return 0, mapError(err)
	}

	f, err := validateListOpts(&opts)
	if err != nil {
		return 0, err
	}
	if isEmptyFilter(f) {
		return 0, fmt.Errorf("at least one filter is required: %w", ErrNotValid)
	}

	n, err := c.scheduler.MarkAs(ctx, f, model.TaskStatus(status))
	if err != nil {
		return 0, mapError(err)
	}

	return n, nil
}

// PurgeTasks deletes the tasks matching opts and returns how many were deleted.
// A nil opts deletes all tasks.
func (c *Client) PurgeTasks(ctx context.Context, opts *ListTasksOpts) (int64, error) {
	f, err := validateListOpts(opts)
	if err != nil {
		return 0, err
	}

	n, err := c.scheduler.Purge(ctx, f)
	if err != nil {
		return 0, mapError(err)
	}

	return n, nil
}

// Status returns the synchronization health: last success, failure flag,
// task counts and local record counters.
func (c *Client) Status(ctx context.Context) (*SyncStatus, error) {
	s, err := c.status.Run(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	out := fromInternalStatus(*s)
	return &out, nil
}

func validateListOpts(opts *ListTasksOpts) (model.TaskFilter, error) {
	f := toInternalTaskFilter(opts)
	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return f, mapError(err)
		}
	}
	for _, t := range f.Types {
		if err := t.Validate(); err != nil {
			return f, mapError(err)
		}
	}

	return f, nil
}

func isEmptyFilter(f model.TaskFilter) bool {
	return len(f.IDs) == 0 && len(f.Names) == 0 && len(f.Types) == 0 &&
		len(f.TypeGroups) == 0 && len(f.Statuses) == 0 && f.TargetID == nil
}
