package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	TaskRepository   storage.TaskRepository
	KVRepository     storage.KVRepository
	RecordRepository storage.RecordRepository
	// RecordKinds are the local record kinds reported.
	RecordKinds []string
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.TaskRepository == nil {
		return fmt.Errorf("task repository is required")
	}

	if c.KVRepository == nil {
		return fmt.Errorf("kv repository is required")
	}

	if c.RecordRepository == nil && len(c.RecordKinds) > 0 {
		return fmt.Errorf("record repository is required to report record kinds")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service retrieves the synchronization status.
type Service struct {
	taskRepo    storage.TaskRepository
	kvRepo      storage.KVRepository
	recordRepo  storage.RecordRepository
	recordKinds []string
	logger      log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		taskRepo:    cfg.TaskRepository,
		kvRepo:      cfg.KVRepository,
		recordRepo:  cfg.RecordRepository,
		recordKinds: cfg.RecordKinds,
		logger:      cfg.Logger,
	}, nil
}

var taskStatuses = []model.TaskStatus{
	model.TaskStatusNew,
	model.TaskStatusProcessing,
	model.TaskStatusFailed,
	model.TaskStatusSuccess,
}

// Run returns the last success, the failure flag, the task counts by status
// and the local record counters.
func (s *Service) Run(ctx context.Context) (*model.SyncStatus, error) {
	st := &model.SyncStatus{TaskCounts: map[model.TaskStatus]int64{}}

	last, err := s.kvRepo.GetValue(ctx, conventions.KVKeyLastSuccess)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("could not get last success: %w", err)
	default:
		t, err := time.Parse(time.RFC3339, last)
		if err != nil {
			s.logger.Warningf("Invalid last success %q: %s", last, err)
		} else {
			st.LastSuccess = &t
		}
	}

	hadFailure, err := s.kvRepo.GetValue(ctx, conventions.KVKeyHadFailure)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get failure flag: %w", err)
	}
	st.HadFailure = hadFailure == "true"

	for _, status := range taskStatuses {
		n, err := s.taskRepo.CountTasks(ctx, model.TaskFilter{Statuses: []model.TaskStatus{status}})
		if err != nil {
			return nil, fmt.Errorf("could not count %s tasks: %w", status, err)
		}
		st.TaskCounts[status] = n
	}

	for _, kind := range s.recordKinds {
		agg, err := s.recordRepo.GetAggregate(ctx, kind)
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Debugf("No aggregate for %s yet", kind)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not get %s aggregate: %w", kind, err)
		}
		st.Records = append(st.Records, *agg)
	}

	return st, nil
}
