package schedule

import (
	"context"
	"fmt"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

// ServiceConfig is the configuration for the schedule service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Schedule"})
	return nil
}

// Service schedules tasks deduplicating them by name.
type Service struct {
	repo   storage.TaskRepository
	logger log.Logger
}

// NewService creates a new schedule service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request is a task scheduling request.
type Request struct {
	Type     model.TaskType
	TargetID int64
	MetaData model.MetaData
	// ForceAdd always inserts a new task even if there is one with the same name.
	ForceAdd bool
	// InitialStatus defaults to new.
	InitialStatus model.TaskStatus
}

func (r *Request) defaults() error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if r.TargetID < 0 {
		return fmt.Errorf("target id can't be negative: %w", model.ErrNotValid)
	}
	if r.InitialStatus == "" {
		r.InitialStatus = model.TaskStatusNew
	}
	if err := r.InitialStatus.Validate(); err != nil {
		return err
	}
	return nil
}

// Schedule adds a task to the queue.
//
// If a non success task with the same name exists it's reused, being moved
// back to new when it's not pending, instead of inserting a duplicate.
func (s *Service) Schedule(ctx context.Context, req Request) (*model.Task, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	name := task.Name(req.Type, req.TargetID)
	logger := s.logger.WithValues(log.Kv{"task": name})

	t := model.Task{
		Name:      name,
		Type:      req.Type,
		TypeGroup: req.Type.Group(),
		TargetID:  req.TargetID,
		MetaData:  req.MetaData,
		Status:    req.InitialStatus,
	}
	if t.MetaData == nil {
		t.MetaData = model.MetaData{}
	}

	if !req.ForceAdd {
		got, created, err := s.repo.FindOrCreateTask(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("could not schedule task: %w", err)
		}
		if created {
			logger.Infof("Task %d scheduled", got.ID)
		} else {
			logger.Debugf("Task %d reused", got.ID)
		}
		return got, nil
	}

	id, err := s.repo.CreateTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	created, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get created task: %w", err)
	}
	logger.Infof("Task %d scheduled", id)

	return created, nil
}

// Reschedule replaces every task with the same name by a fresh one.
func (s *Service) Reschedule(ctx context.Context, req Request) (*model.Task, error) {
	if err := req.defaults(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	name := task.Name(req.Type, req.TargetID)
	old, err := s.repo.ListTasks(ctx, model.TaskFilter{Names: []string{name}})
	if err != nil {
		return nil, fmt.Errorf("could not list existing tasks: %w", err)
	}

	meta := model.MetaData{}
	for k, v := range req.MetaData {
		meta[k] = v
	}

	if len(old) > 0 {
		ids := make([]int64, 0, len(old))
		for _, t := range old {
			ids = append(ids, t.ID)
		}
		if _, err := s.repo.DeleteTasks(ctx, model.TaskFilter{IDs: ids}); err != nil {
			return nil, fmt.Errorf("could not delete existing tasks: %w", err)
		}
		meta[task.MetaKeyRemovedTaskIDs] = ids
		s.logger.WithValues(log.Kv{"task": name}).Infof("Removed %d tasks to reschedule", len(ids))
	}

	req.MetaData = meta
	req.ForceAdd = true
	return s.Schedule(ctx, req)
}

// Purge deletes the tasks matching the filter, returns the number of deleted tasks.
func (s *Service) Purge(ctx context.Context, f model.TaskFilter) (int64, error) {
	n, err := s.repo.DeleteTasks(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("could not delete tasks: %w", err)
	}
	s.logger.Infof("Purged %d tasks", n)

	return n, nil
}

// MarkAs sets the status of the tasks matching the filter, returns the number of updated tasks.
func (s *Service) MarkAs(ctx context.Context, f model.TaskFilter, status model.TaskStatus) (int64, error) {
	if err := status.Validate(); err != nil {
		return 0, err
	}

	tasks, err := s.repo.ListTasks(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("could not list tasks: %w", err)
	}

	var n int64
	for _, t := range tasks {
		if t.Status == status {
			continue
		}
		if err := s.repo.UpdateTaskStatus(ctx, t.ID, status, t.ErrorOutput); err != nil {
			return n, fmt.Errorf("could not update task %d: %w", t.ID, err)
		}
		n++
	}
	s.logger.Infof("Marked %d tasks as %s", n, status)

	return n, nil
}
