package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/bosync/internal/app/dispatch"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/runner"
	"github.com/slok/bosync/internal/storage"
)

// ServiceConfig is the configuration for the batch service.
type ServiceConfig struct {
	TaskRepository storage.TaskRepository
	KVRepository   storage.KVRepository
	Locker         lock.Locker
	Runner         runner.Runner
	// Scheduler schedules the error reports of the tasks whose child
	// process died before recording its failure.
	Scheduler dispatch.Scheduler
	// OrderTypes are run before any other pending task.
	OrderTypes     []model.TaskType
	PageSize       int
	FailureFlagTTL time.Duration
	Logger         log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}
	if c.KVRepository == nil {
		return fmt.Errorf("kv repository is required")
	}
	if c.Locker == nil {
		return fmt.Errorf("locker is required")
	}
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Scheduler == nil {
		return fmt.Errorf("scheduler is required")
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.FailureFlagTTL <= 0 {
		c.FailureFlagTTL = 10 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Batch"})
	return nil
}

// Service runs the pending tasks of the queue, one batch at a time.
type Service struct {
	taskRepo       storage.TaskRepository
	kvRepo         storage.KVRepository
	locker         lock.Locker
	runner         runner.Runner
	scheduler      dispatch.Scheduler
	orderTypes     []model.TaskType
	pageSize       int
	failureFlagTTL time.Duration
	logger         log.Logger
	now            func() time.Time
}

// NewService creates a new batch service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		taskRepo:       cfg.TaskRepository,
		kvRepo:         cfg.KVRepository,
		locker:         cfg.Locker,
		runner:         cfg.Runner,
		scheduler:      cfg.Scheduler,
		orderTypes:     cfg.OrderTypes,
		pageSize:       cfg.PageSize,
		failureFlagTTL: cfg.FailureFlagTTL,
		logger:         cfg.Logger,
		now:            time.Now,
	}, nil
}

// Request is a batch run request.
type Request struct {
	// Limit caps the number of tasks of the run, 0 means no limit.
	Limit int
	// FailFast stops the batch on the first failed task.
	FailFast bool
	// TypeGroup optionally restricts the run to a type group.
	TypeGroup string
}

// Result is the summary of a batch run.
type Result struct {
	RunID       string
	Outcome     model.Outcome
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	Rescheduled int
	// FailedTaskIDs are the tasks that failed, their detail is on the task error output.
	FailedTaskIDs []int64
	Duration      time.Duration
}

// HadFailure returns true if any task failed or the batch was aborted by a failure.
func (r Result) HadFailure() bool {
	return r.Failed > 0 || r.Outcome.Kind == model.OutcomeFailed
}

// Execute runs a batch of pending tasks holding the batch lock.
//
// Lock contention, on the batch or on a task, ends the run with a skipped
// outcome. A connectivity timeout that was not rescheduled aborts the batch,
// any other task failure is recorded and the batch continues unless FailFast.
func (s *Service) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	start := s.now()
	res := &Result{RunID: ulid.Make().String(), Outcome: model.Ran()}
	logger := s.logger.WithValues(log.Kv{"run-id": res.RunID})

	err := lock.WithLock(ctx, s.locker, conventions.BatchScope, logger, func(ctx context.Context) (err error) {
		defer func() { s.housekeeping(ctx, logger, res.Failed > 0 || err != nil) }()
		return s.process(ctx, logger, req, res)
	})
	res.Duration = s.now().Sub(start)

	switch {
	case err == nil:
	case model.IsLockError(err):
		logger.Infof("Batch skipped, another run holds the lock")
		res.Outcome = model.Skipped("batch lock held by another run")
		return res, nil
	default:
		res.Outcome = model.Failed(err)
		return res, err
	}

	logger.Infof("Batch finished in %s: %d processed, %d succeeded, %d failed, %d rescheduled, %d skipped",
		res.Duration, res.Processed, res.Succeeded, res.Failed, res.Rescheduled, res.Skipped)

	return res, nil
}

func (s *Service) process(ctx context.Context, logger log.Logger, req Request, res *Result) error {
	ids, err := s.taskRepo.ListPendingTaskIDs(ctx, model.PendingQuery{
		OrderTypes: s.orderTypes,
		PageSize:   s.pageSize,
		TypeGroup:  req.TypeGroup,
	})
	if err != nil {
		return fmt.Errorf("could not list pending tasks: %w", err)
	}
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	logger.Infof("%d pending tasks", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		t, err := s.taskRepo.GetTask(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				res.Skipped++
				continue
			}
			return fmt.Errorf("could not get task %d: %w", id, err)
		}

		claimed, err := s.taskRepo.ClaimTask(ctx, id)
		if err != nil {
			return fmt.Errorf("could not claim task %d: %w", id, err)
		}
		if !claimed {
			res.Skipped++
			continue
		}

		res.Processed++
		tLogger := logger.WithValues(log.Kv{"task": t.Name, "task-id": t.ID})

		_, err = s.runner.Run(ctx, dispatch.Invocation(*t))
		switch {
		case err == nil:
			res.Succeeded++
			if err := s.taskRepo.UpdateTaskStatus(ctx, id, model.TaskStatusSuccess, ""); err != nil {
				return fmt.Errorf("could not mark task %d as success: %w", id, err)
			}
			if err := s.kvRepo.SetValue(ctx, conventions.KVKeyLastSuccess, s.now().UTC().Format(time.RFC3339), 0); err != nil {
				tLogger.Warningf("Could not store last success: %s", err)
			}

		case model.IsLockError(err):
			tLogger.Infof("Task lock held by another run, stopping batch")
			res.Outcome = model.Skipped(fmt.Sprintf("task %s lock held by another run", t.Name))
			return nil

		case errors.Is(err, model.ErrTaskRescheduled):
			res.Rescheduled++
			tLogger.Warningf("Task rescheduled: %s", err)

		case errors.Is(err, model.ErrConnectivityTimeout):
			s.recordFailure(ctx, tLogger, res, id, err)
			return fmt.Errorf("connectivity timeout on task %s: %w", t.Name, err)

		default:
			s.recordFailure(ctx, tLogger, res, id, err)
			if req.FailFast {
				return fmt.Errorf("task %s failed: %w", t.Name, err)
			}
		}
	}

	return nil
}

// recordFailure counts the failure. When the dispatcher could not record it
// (e.g. a killed subprocess) the task is marked as failed with an error bundle
// carrying the child output, and its error report is scheduled.
func (s *Service) recordFailure(ctx context.Context, logger log.Logger, res *Result, id int64, taskErr error) {
	res.Failed++
	res.FailedTaskIDs = append(res.FailedTaskIDs, id)
	logger.Errorf("Task failed: %s", taskErr)

	// The run context may be the one that killed the child.
	ctx = context.WithoutCancel(ctx)

	t, err := s.taskRepo.GetTask(ctx, id)
	if err != nil {
		logger.Errorf("Could not get failed task: %s", err)
		return
	}
	if t.Status != model.TaskStatusProcessing {
		return
	}

	bundle := failureBundle(t, taskErr)
	if err := s.taskRepo.UpdateTaskStatus(ctx, id, model.TaskStatusFailed, bundle); err != nil {
		logger.Errorf("Could not mark task as failed: %s", err)
	}

	if t.Type == model.TaskTypeReportError {
		return
	}
	if err := dispatch.ScheduleReport(ctx, s.scheduler, t, taskErr, bundle); err != nil {
		logger.Errorf("Could not schedule error report: %s", err)
	}
}

// failureBundle is the dispatcher error bundle plus the output of the child
// process when there was one.
func failureBundle(t *model.Task, taskErr error) string {
	var b strings.Builder
	b.WriteString(dispatch.ErrorBundle(t, taskErr))

	var failure *runner.SubProcessFailure
	if errors.As(taskErr, &failure) {
		fmt.Fprintf(&b, "child exit code: %d\n", failure.ExitCode)
		b.WriteString("child stderr:\n")
		b.WriteString(failure.Stderr)
		b.WriteString("child stdout:\n")
		b.WriteString(failure.Stdout)
	}

	return b.String()
}

func (s *Service) housekeeping(ctx context.Context, logger log.Logger, hadFailure bool) {
	// The run context may be cancelled already.
	ctx = context.WithoutCancel(ctx)

	if err := s.kvRepo.SetValue(ctx, conventions.KVKeyHadFailure, strconv.FormatBool(hadFailure), s.failureFlagTTL); err != nil {
		logger.Warningf("Could not store failure flag: %s", err)
	}

	n, err := s.kvRepo.DeleteExpired(ctx)
	if err != nil {
		logger.Warningf("Could not clean expired entries: %s", err)
		return
	}
	if n > 0 {
		logger.Debugf("%d expired entries cleaned", n)
	}
}
