package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/printer"
)

func taskFixture() model.Task {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	lastRun := createdAt.Add(time.Minute)
	return model.Task{
		ID:                7,
		Name:              "import-order::42",
		Type:              model.TaskTypeImportOrder,
		TypeGroup:         model.TaskTypeGroupOrder,
		TargetID:          42,
		MetaData:          model.MetaData{"lang": "en"},
		Status:            model.TaskStatusFailed,
		TimesRan:          2,
		CreatedAt:         createdAt,
		UpdatedAt:         lastRun,
		LastProcessedAt:   &lastRun,
		ExecutionDuration: 1500 * time.Millisecond,
		ErrorOutput:       "error: boom\nstack:",
	}
}

func batchFixture() batch.Result {
	return batch.Result{
		RunID:         "01HZX",
		Outcome:       model.Ran(),
		Processed:     3,
		Succeeded:     2,
		Failed:        1,
		FailedTaskIDs: []int64{7},
		Duration:      2 * time.Second,
	}
}

func TestTablePrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Name:       import-order::42")
	assert.Contains(t, out, "Status:     failed")
	assert.Contains(t, out, "Last run:   2026-01-30 10:01:00 UTC (1.5s)")
	assert.Contains(t, out, "Error:\n  error: boom\n  stack:")
}

func TestTablePrinterPrintTaskList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintTaskList([]model.Task{taskFixture()})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "import-order::42")
	assert.Contains(t, lines[1], "failed")
}

func TestTablePrinterPrintBatchResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintBatchResult(batchFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Batch 01HZX ran in 2s")
	assert.Contains(t, out, "Failed:       1")
	assert.Contains(t, out, "Failed tasks: 7 (see 'bosync task list --status failed')")
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintStatus(model.SyncStatus{
		HadFailure: true,
		TaskCounts: map[model.TaskStatus]int64{model.TaskStatusNew: 3, model.TaskStatusFailed: 1},
		Records:    []model.RecordAggregate{{Kind: "products", ActiveCount: 10, TotalCount: 12}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Last success:  never")
	assert.Contains(t, out, "Had failure:   true")
	assert.Contains(t, out, "products  10      12")
}

func TestJSONPrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "import-order::42"`)
	assert.Contains(t, out, `"type_group": "order"`)
	assert.Contains(t, out, `"execution_duration": "1.5s"`)
	assert.Contains(t, out, `"lang": "en"`)
}

func TestJSONPrinterPrintBatchResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintBatchResult(batch.Result{RunID: "x", Outcome: model.Skipped("locked")})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"outcome": "skipped"`)
	assert.Contains(t, out, `"reason": "locked"`)
	assert.Contains(t, out, `"failed_task_ids": []`)
}

func TestJSONPrinterPrintImportResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintImportResult("import-products", importer.Result{Outcome: model.Ran(), Pages: 2, Fetched: 150, Processed: 149, Failed: 1})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"name": "import-products"`)
	assert.Contains(t, out, `"invalid": 1`)
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
