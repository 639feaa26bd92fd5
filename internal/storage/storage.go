package storage

import (
	"context"
	"time"

	"github.com/slok/bosync/internal/model"
)

// TaskRepository is the interface for task persistence.
type TaskRepository interface {
	// CreateTask inserts a task and returns the ID assigned by the store.
	CreateTask(ctx context.Context, t model.Task) (int64, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	// UpdateTask updates all the mutable fields of a task.
	UpdateTask(ctx context.Context, t model.Task) error
	UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errorOutput string) error
	// ClaimTask atomically moves a task from new to processing. Returns false
	// if the task is missing or not new anymore.
	ClaimTask(ctx context.Context, id int64) (bool, error)
	// ListPendingTaskIDs returns the ids of the new tasks, order types first.
	ListPendingTaskIDs(ctx context.Context, q model.PendingQuery) ([]int64, error)
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	// FindActiveTaskByName returns the latest non success task with the name.
	FindActiveTaskByName(ctx context.Context, name string) (*model.Task, error)
	// FindOrCreateTask atomically reuses the latest non success task with the
	// name of t, moving it back to new when needed, or inserts t. The bool is
	// true when t was inserted.
	FindOrCreateTask(ctx context.Context, t model.Task) (*model.Task, bool, error)
	DeleteTasks(ctx context.Context, f model.TaskFilter) (int64, error)
	CountTasks(ctx context.Context, f model.TaskFilter) (int64, error)
}

// KVRepository is the interface for small expiring bookkeeping values.
type KVRepository interface {
	// SetValue stores a value, a ttl of 0 never expires.
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
	GetValue(ctx context.Context, key string) (string, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// RecordRepository is the local store contract used by the synchronization handlers.
type RecordRepository interface {
	UpsertRecord(ctx context.Context, r model.LocalRecord) error
	GetRecord(ctx context.Context, kind, externalID string) (*model.LocalRecord, error)
	DeleteRecord(ctx context.Context, kind, externalID string) error
	ListRecordIDs(ctx context.Context, kind string, activeOnly bool) ([]string, error)
	// DeactivateMissing deactivates the records of a kind not present in keep.
	DeactivateMissing(ctx context.Context, kind string, keep []string) (int64, error)
	// RecountAggregates recomputes the derived per kind counters.
	RecountAggregates(ctx context.Context) error
	GetAggregate(ctx context.Context, kind string) (*model.RecordAggregate, error)
}
