package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/model"
)

// JSONPrinter prints queue information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a task in the list output (subset of fields).
type listItem struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Status          string     `json:"status"`
	TimesRan        int        `json:"times_ran"`
	CreatedAt       time.Time  `json:"created_at"`
	LastProcessedAt *time.Time `json:"last_processed_at"`
}

// taskOutput represents the full task output.
type taskOutput struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Type              string         `json:"type"`
	TypeGroup         string         `json:"type_group"`
	TargetID          int64          `json:"target_id"`
	MetaData          map[string]any `json:"meta_data"`
	Status            string         `json:"status"`
	TimesRan          int            `json:"times_ran"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	LastProcessedAt   *time.Time     `json:"last_processed_at"`
	ExecutionDuration string         `json:"execution_duration"`
	ErrorOutput       string         `json:"error_output,omitempty"`
}

type batchOutput struct {
	RunID         string  `json:"run_id"`
	Outcome       string  `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
	Processed     int     `json:"processed"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	Rescheduled   int     `json:"rescheduled"`
	Skipped       int     `json:"skipped"`
	FailedTaskIDs []int64 `json:"failed_task_ids"`
	Duration      string  `json:"duration"`
}

type importOutput struct {
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Pages     int    `json:"pages"`
	Fetched   int    `json:"fetched"`
	Processed int    `json:"processed"`
	Invalid   int    `json:"invalid"`
	Duration  string `json:"duration"`
}

type statusOutput struct {
	LastSuccess *time.Time       `json:"last_success"`
	HadFailure  bool             `json:"had_failure"`
	Tasks       map[string]int64 `json:"tasks"`
	Records     []recordOutput   `json:"records"`
}

type recordOutput struct {
	Kind   string `json:"kind"`
	Active int64  `json:"active"`
	Total  int64  `json:"total"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]listItem, len(tasks))
	for i, t := range tasks {
		items[i] = listItem{
			ID:              t.ID,
			Name:            t.Name,
			Status:          string(t.Status),
			TimesRan:        t.TimesRan,
			CreatedAt:       t.CreatedAt.UTC(),
			LastProcessedAt: utc(t.LastProcessedAt),
		}
	}

	return j.encode(items)
}

// PrintTask prints the task details in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task) error {
	return j.encode(taskOutput{
		ID:                task.ID,
		Name:              task.Name,
		Type:              string(task.Type),
		TypeGroup:         task.TypeGroup,
		TargetID:          task.TargetID,
		MetaData:          task.MetaData,
		Status:            string(task.Status),
		TimesRan:          task.TimesRan,
		CreatedAt:         task.CreatedAt.UTC(),
		UpdatedAt:         task.UpdatedAt.UTC(),
		LastProcessedAt:   utc(task.LastProcessedAt),
		ExecutionDuration: task.ExecutionDuration.String(),
		ErrorOutput:       task.ErrorOutput,
	})
}

// PrintBatchResult prints the batch run summary in JSON format.
func (j *JSONPrinter) PrintBatchResult(res batch.Result) error {
	failed := res.FailedTaskIDs
	if failed == nil {
		failed = []int64{}
	}

	return j.encode(batchOutput{
		RunID:         res.RunID,
		Outcome:       string(res.Outcome.Kind),
		Reason:        res.Outcome.Reason,
		Processed:     res.Processed,
		Succeeded:     res.Succeeded,
		Failed:        res.Failed,
		Rescheduled:   res.Rescheduled,
		Skipped:       res.Skipped,
		FailedTaskIDs: failed,
		Duration:      res.Duration.String(),
	})
}

// PrintImportResult prints the import run summary in JSON format.
func (j *JSONPrinter) PrintImportResult(name string, res importer.Result) error {
	return j.encode(importOutput{
		Name:      name,
		Outcome:   string(res.Outcome.Kind),
		Reason:    res.Outcome.Reason,
		Pages:     res.Pages,
		Fetched:   res.Fetched,
		Processed: res.Processed,
		Invalid:   res.Failed,
		Duration:  res.Duration.String(),
	})
}

// PrintStatus prints the synchronization status in JSON format.
func (j *JSONPrinter) PrintStatus(status model.SyncStatus) error {
	output := statusOutput{
		LastSuccess: utc(status.LastSuccess),
		HadFailure:  status.HadFailure,
		Tasks:       map[string]int64{},
		Records:     []recordOutput{},
	}
	for s, n := range status.TaskCounts {
		output.Tasks[string(s)] = n
	}
	for _, r := range status.Records {
		output.Records = append(output.Records, recordOutput{Kind: r.Kind, Active: r.ActiveCount, Total: r.TotalCount})
	}

	return j.encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
