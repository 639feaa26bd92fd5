package list

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

// ServiceConfig is the configuration for the list service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.List"})

	return nil
}

// Service lists and looks up queued tasks.
type Service struct {
	repo   storage.TaskRepository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	Filter model.TaskFilter
}

// Run lists the tasks matching the filter.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Task, error) {
	s.logger.Debugf("listing tasks with filter: %+v", req.Filter)

	tasks, err := s.repo.ListTasks(ctx, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	s.logger.Debugf("found %d tasks", len(tasks))
	return tasks, nil
}

// Get returns a task by its id or by its name. A name can match many tasks
// (e.g. rescheduled ones), the active one wins, otherwise the latest one.
func (s *Service) Get(ctx context.Context, idOrName string) (*model.Task, error) {
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		t, err := s.repo.GetTask(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("could not get task %d: %w", id, err)
		}
		return t, nil
	}

	if _, _, err := task.ParseName(idOrName); err != nil {
		return nil, fmt.Errorf("%q is not a task id or name: %w", idOrName, model.ErrNotValid)
	}

	t, err := s.repo.FindActiveTaskByName(ctx, idOrName)
	switch {
	case err == nil:
		return t, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("could not find active task: %w", err)
	}

	tasks, err := s.repo.ListTasks(ctx, model.TaskFilter{Names: []string{idOrName}})
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %q: %w", idOrName, model.ErrNotFound)
	}

	latest := tasks[0]
	for _, t := range tasks[1:] {
		if t.ID > latest.ID {
			latest = t
		}
	}

	return &latest, nil
}
