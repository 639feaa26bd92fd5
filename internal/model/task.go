package model

import (
	"fmt"
	"time"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusNew        TaskStatus = "new"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSuccess    TaskStatus = "success"
)

// Validate checks the status is a known one.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusNew, TaskStatusProcessing, TaskStatusFailed, TaskStatusSuccess:
		return nil
	}
	return fmt.Errorf("unknown task status %q: %w", s, ErrNotValid)
}

// TaskType is the kind of work a task represents.
type TaskType string

const (
	TaskTypeImportProducts   TaskType = "import-products"
	TaskTypeImportProduct    TaskType = "import-product"
	TaskTypeImportCustomers  TaskType = "import-customers"
	TaskTypeImportCategories TaskType = "import-categories"
	TaskTypeImportOrder      TaskType = "import-order"
	TaskTypeExportOrder      TaskType = "export-order"
	TaskTypeReportError      TaskType = "report-error"
)

// TaskTypes are all the task types known by the system.
var TaskTypes = []TaskType{
	TaskTypeImportProducts,
	TaskTypeImportProduct,
	TaskTypeImportCustomers,
	TaskTypeImportCategories,
	TaskTypeImportOrder,
	TaskTypeExportOrder,
	TaskTypeReportError,
}

// Task type groups.
const (
	TaskTypeGroupImport = "import"
	TaskTypeGroupOrder  = "order"
	TaskTypeGroupReport = "report"
)

// Group returns the coarse category of the task type.
func (t TaskType) Group() string {
	switch t {
	case TaskTypeImportOrder, TaskTypeExportOrder:
		return TaskTypeGroupOrder
	case TaskTypeReportError:
		return TaskTypeGroupReport
	default:
		return TaskTypeGroupImport
	}
}

// Validate checks the type is a known one.
func (t TaskType) Validate() error {
	for _, tt := range TaskTypes {
		if t == tt {
			return nil
		}
	}
	return fmt.Errorf("task type %q: %w", t, ErrUnknownTaskType)
}

// MetaData is the opaque key/value bag carried by a task to its handler.
type MetaData map[string]any

// Task is a single persisted unit of deferred synchronization work.
type Task struct {
	ID                int64
	Name              string
	Type              TaskType
	TypeGroup         string
	TargetID          int64
	MetaData          MetaData
	Status            TaskStatus
	TimesRan          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastProcessedAt   *time.Time
	ExecutionDuration time.Duration
	ErrorOutput       string
}

// TaskFilter selects tasks, empty fields don't filter.
type TaskFilter struct {
	IDs        []int64
	Names      []string
	Types      []TaskType
	TypeGroups []string
	Statuses   []TaskStatus
	TargetID   *int64
	Limit      int
}

// PendingQuery selects the ids of the tasks ready to be processed.
type PendingQuery struct {
	// OrderTypes are the latency sensitive task types, fetched before the rest.
	OrderTypes []TaskType
	// PageSize caps each of the partitions.
	PageSize int
	// TypeGroup optionally restricts the selection to a type group.
	TypeGroup string
}
