package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

// PostProcessor fixes up global derived state after any successful task.
type PostProcessor func(ctx context.Context, t *model.Task) error

// Scheduler schedules the error report tasks.
type Scheduler interface {
	Schedule(ctx context.Context, req schedule.Request) (*model.Task, error)
}

// ServiceConfig is the configuration for the dispatch service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	Registry   *task.Registry
	Scheduler  Scheduler
	// PostProcessors run in order after every successful task.
	PostProcessors []PostProcessor
	// RetryBudget is how many runs a task may time out and still be rescheduled.
	RetryBudget int
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Scheduler == nil {
		return fmt.Errorf("scheduler is required")
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry budget can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Dispatch"})
	return nil
}

// Service resolves the handler of a task and runs it, classifying its failures.
type Service struct {
	repo           storage.TaskRepository
	registry       *task.Registry
	scheduler      Scheduler
	postProcessors []PostProcessor
	retryBudget    int
	logger         log.Logger
	now            func() time.Time
}

// NewService creates a new dispatch service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:           cfg.Repository,
		registry:       cfg.Registry,
		scheduler:      cfg.Scheduler,
		postProcessors: cfg.PostProcessors,
		retryBudget:    cfg.RetryBudget,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// Dispatch runs the task with the handler of its "type::id" name.
//
// Lock errors are returned unchanged. Connectivity timeouts inside the retry
// budget put the task back to new and return an error wrapping both
// model.ErrConnectivityTimeout and model.ErrTaskRescheduled. Any other error
// marks the task as failed, records the error bundle and schedules an error
// report task.
func (s *Service) Dispatch(ctx context.Context, taskID int64, typeName string) (err error) {
	typ, targetID, err := task.ParseName(typeName)
	if err != nil {
		return err
	}

	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task %d: %w", taskID, err)
	}
	if t.Type != typ || t.TargetID != targetID {
		return fmt.Errorf("task %d is %s, not %s: %w", taskID, t.Name, typeName, model.ErrNotValid)
	}

	logger := s.logger.WithValues(log.Kv{"task": t.Name, "task-id": t.ID})
	ctx = logger.SetValuesOnCtx(ctx, log.Kv{"task": t.Name})

	now := s.now()
	t.TimesRan++
	t.LastProcessedAt = &now
	if err := s.repo.UpdateTask(ctx, *t); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	start := s.now()
	err = s.run(ctx, t, typ)
	t.ExecutionDuration = s.now().Sub(start)

	if err != nil {
		return s.handleFailure(ctx, logger, t, err)
	}

	if err := s.repo.UpdateTask(ctx, *t); err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	for _, pp := range s.postProcessors {
		if err := pp(ctx, t); err != nil {
			logger.Errorf("Post processing failed: %s", err)
		}
	}

	logger.Infof("Task ran in %s", t.ExecutionDuration)

	return nil
}

// run resolves and runs the handler, panics are converted to errors.
func (s *Service) run(ctx context.Context, t *model.Task, typ model.TaskType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	h, err := s.registry.Handler(typ)
	if err != nil {
		return err
	}

	return h.Run(ctx, t)
}

func (s *Service) handleFailure(ctx context.Context, logger log.Logger, t *model.Task, taskErr error) error {
	switch {
	case model.IsLockError(taskErr):
		// Not a task failure, leave it as it was for the next run.
		t.Status = model.TaskStatusNew
		t.TimesRan--
		if err := s.repo.UpdateTask(ctx, *t); err != nil {
			logger.Errorf("Could not restore task: %s", err)
		}
		logger.Infof("Task skipped, lock held by another run")
		return taskErr

	case errors.Is(taskErr, model.ErrConnectivityTimeout) && t.TimesRan <= s.retryBudget:
		t.Status = model.TaskStatusNew
		t.ErrorOutput = taskErr.Error()
		if err := s.repo.UpdateTask(ctx, *t); err != nil {
			return fmt.Errorf("could not reschedule task after %w: %w", taskErr, err)
		}
		logger.Warningf("Task rescheduled after connectivity timeout (run %d of %d)", t.TimesRan, s.retryBudget)
		return fmt.Errorf("task %s: %w: %w", t.Name, model.ErrTaskRescheduled, taskErr)
	}

	bundle := ErrorBundle(t, taskErr)
	t.Status = model.TaskStatusFailed
	t.ErrorOutput = bundle
	if err := s.repo.UpdateTask(ctx, *t); err != nil {
		logger.Errorf("Could not mark task as failed: %s", err)
	}
	logger.Errorf("Task failed: %s", taskErr)

	// Error reports don't report themselves.
	if t.Type != model.TaskTypeReportError {
		if err := ScheduleReport(ctx, s.scheduler, t, taskErr, bundle); err != nil {
			logger.Errorf("Could not schedule error report: %s", err)
		}
	}

	return fmt.Errorf("task %s failed: %w", t.Name, taskErr)
}

// ScheduleReport force adds the report-error task of a failed task.
func ScheduleReport(ctx context.Context, scheduler Scheduler, t *model.Task, taskErr error, bundle string) error {
	meta, err := task.EncodeMeta(task.ReportErrorMeta{
		FailedTaskID:   t.ID,
		FailedTaskName: t.Name,
		ErrorKind:      model.ErrorKind(taskErr),
		Bundle:         bundle,
	})
	if err != nil {
		return err
	}

	_, err = scheduler.Schedule(ctx, schedule.Request{
		Type:     model.TaskTypeReportError,
		TargetID: t.ID,
		MetaData: meta,
		ForceAdd: true,
	})
	return err
}
