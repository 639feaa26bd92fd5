package lib

import (
	"errors"
	"time"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/model"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned on invalid input.
	ErrNotValid = errors.New("not valid")
)

// TaskType is the kind of work a task represents.
type TaskType string

const (
	TaskTypeImportProducts   TaskType = TaskType(model.TaskTypeImportProducts)
	TaskTypeImportProduct    TaskType = TaskType(model.TaskTypeImportProduct)
	TaskTypeImportCustomers  TaskType = TaskType(model.TaskTypeImportCustomers)
	TaskTypeImportCategories TaskType = TaskType(model.TaskTypeImportCategories)
	TaskTypeImportOrder      TaskType = TaskType(model.TaskTypeImportOrder)
	TaskTypeExportOrder      TaskType = TaskType(model.TaskTypeExportOrder)
	TaskTypeReportError      TaskType = TaskType(model.TaskTypeReportError)
)

// TaskStatus is the state of a task.
//
// The lifecycle is:
//
//	new -> processing -> success | failed
//
// A task that timed out reaching the remote goes back to new once.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = TaskStatus(model.TaskStatusNew)
	TaskStatusProcessing TaskStatus = TaskStatus(model.TaskStatusProcessing)
	TaskStatusFailed     TaskStatus = TaskStatus(model.TaskStatusFailed)
	TaskStatusSuccess    TaskStatus = TaskStatus(model.TaskStatusSuccess)
)

// Task is a unit of queued synchronization work.
type Task struct {
	ID   int64
	Name string
	Type TaskType
	// TypeGroup is the family of the type (e.g. import, export).
	TypeGroup         string
	TargetID          int64
	MetaData          map[string]any
	Status            TaskStatus
	TimesRan          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastProcessedAt   *time.Time
	ExecutionDuration time.Duration
	ErrorOutput       string
}

// ScheduleTaskOpts are the options to schedule a task.
type ScheduleTaskOpts struct {
	Type TaskType
	// TargetID is the entity id, 0 targets the whole collection.
	TargetID int64
	MetaData map[string]any
	// ForceAdd always inserts a new task even if one with the same name is pending.
	ForceAdd bool
}

// ListTasksOpts filter the listed tasks, empty fields don't filter.
type ListTasksOpts struct {
	Statuses   []TaskStatus
	Types      []TaskType
	TypeGroups []string
	TargetID   *int64
	Limit      int
}

// RecordCount are the counters of a local record kind.
type RecordCount struct {
	Kind   string
	Active int64
	Total  int64
}

// SyncStatus is the health of the synchronization.
type SyncStatus struct {
	// LastSuccess is the last time a task succeeded, nil if never.
	LastSuccess *time.Time
	// HadFailure is set when a recent batch had failures.
	HadFailure bool
	TaskCounts map[TaskStatus]int64
	Records    []RecordCount
}

// --- Conversion helpers ---

func fromInternalTask(t model.Task) Task {
	return Task{
		ID:                t.ID,
		Name:              t.Name,
		Type:              TaskType(t.Type),
		TypeGroup:         t.TypeGroup,
		TargetID:          t.TargetID,
		MetaData:          t.MetaData,
		Status:            TaskStatus(t.Status),
		TimesRan:          t.TimesRan,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		LastProcessedAt:   t.LastProcessedAt,
		ExecutionDuration: t.ExecutionDuration,
		ErrorOutput:       t.ErrorOutput,
	}
}

func fromInternalTaskList(ts []model.Task) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func toInternalScheduleRequest(opts ScheduleTaskOpts) schedule.Request {
	return schedule.Request{
		Type:     model.TaskType(opts.Type),
		TargetID: opts.TargetID,
		MetaData: opts.MetaData,
		ForceAdd: opts.ForceAdd,
	}
}

func toInternalTaskFilter(opts *ListTasksOpts) model.TaskFilter {
	if opts == nil {
		return model.TaskFilter{}
	}

	f := model.TaskFilter{
		TypeGroups: opts.TypeGroups,
		TargetID:   opts.TargetID,
		Limit:      opts.Limit,
	}
	for _, s := range opts.Statuses {
		f.Statuses = append(f.Statuses, model.TaskStatus(s))
	}
	for _, t := range opts.Types {
		f.Types = append(f.Types, model.TaskType(t))
	}

	return f
}

func fromInternalStatus(s model.SyncStatus) SyncStatus {
	out := SyncStatus{
		LastSuccess: s.LastSuccess,
		HadFailure:  s.HadFailure,
		TaskCounts:  make(map[TaskStatus]int64, len(s.TaskCounts)),
	}
	for st, n := range s.TaskCounts {
		out.TaskCounts[TaskStatus(st)] = n
	}
	for _, r := range s.Records {
		out.Records = append(out.Records, RecordCount{Kind: r.Kind, Active: r.ActiveCount, Total: r.TotalCount})
	}

	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid), errors.Is(err, model.ErrUnknownTaskType):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
