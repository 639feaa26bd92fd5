package printer

import (
	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/model"
)

// Printer knows how to print queue information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task) error
	PrintBatchResult(res batch.Result) error
	PrintImportResult(name string, res importer.Result) error
	PrintStatus(status model.SyncStatus) error
	PrintMessage(msg string) error
}
