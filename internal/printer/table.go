package printer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/model"
)

// TablePrinter prints queue information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	now := time.Now()
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tRUNS\tCREATED\tLAST RUN\tTOOK")
	for _, tk := range tasks {
		lastRun := "-"
		if tk.LastProcessedAt != nil {
			lastRun = Ago(now, *tk.LastProcessedAt)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n", tk.ID, tk.Name, tk.Status, tk.TimesRan, Ago(now, tk.CreatedAt), lastRun, FormatDuration(tk.ExecutionDuration))
	}

	return nil
}

// PrintTask prints the details of a task.
func (t *TablePrinter) PrintTask(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:         %d\n", task.ID)
	fmt.Fprintf(t.writer, "Name:       %s\n", task.Name)
	fmt.Fprintf(t.writer, "Group:      %s\n", task.TypeGroup)
	fmt.Fprintf(t.writer, "Status:     %s\n", task.Status)
	fmt.Fprintf(t.writer, "Runs:       %d\n", task.TimesRan)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(task.CreatedAt))

	if task.LastProcessedAt != nil {
		fmt.Fprintf(t.writer, "Last run:   %s (%s)\n", FormatTimestamp(*task.LastProcessedAt), FormatDuration(task.ExecutionDuration))
	}

	if task.ErrorOutput != "" {
		fmt.Fprintf(t.writer, "Error:\n%s\n", indent(task.ErrorOutput))
	}

	return nil
}

// PrintBatchResult prints the summary of a batch run.
func (t *TablePrinter) PrintBatchResult(res batch.Result) error {
	fmt.Fprintf(t.writer, "Batch %s %s in %s\n", res.RunID, res.Outcome.Kind, res.Duration)
	if res.Outcome.Reason != "" {
		fmt.Fprintf(t.writer, "Reason:       %s\n", res.Outcome.Reason)
	}
	fmt.Fprintf(t.writer, "Processed:    %d\n", res.Processed)
	fmt.Fprintf(t.writer, "Succeeded:    %d\n", res.Succeeded)
	fmt.Fprintf(t.writer, "Failed:       %d\n", res.Failed)
	fmt.Fprintf(t.writer, "Rescheduled:  %d\n", res.Rescheduled)
	fmt.Fprintf(t.writer, "Skipped:      %d\n", res.Skipped)

	if len(res.FailedTaskIDs) > 0 {
		ids := make([]string, 0, len(res.FailedTaskIDs))
		for _, id := range res.FailedTaskIDs {
			ids = append(ids, fmt.Sprint(id))
		}
		fmt.Fprintf(t.writer, "Failed tasks: %s (see 'bosync task list --status failed')\n", strings.Join(ids, ", "))
	}

	return nil
}

// PrintImportResult prints the summary of an import run.
func (t *TablePrinter) PrintImportResult(name string, res importer.Result) error {
	fmt.Fprintf(t.writer, "Import %s %s in %s\n", name, res.Outcome.Kind, res.Duration)
	if res.Outcome.Reason != "" {
		fmt.Fprintf(t.writer, "Reason:     %s\n", res.Outcome.Reason)
	}
	fmt.Fprintf(t.writer, "Pages:      %d\n", res.Pages)
	fmt.Fprintf(t.writer, "Fetched:    %d\n", res.Fetched)
	fmt.Fprintf(t.writer, "Processed:  %d\n", res.Processed)
	fmt.Fprintf(t.writer, "Invalid:    %d\n", res.Failed)

	return nil
}

// PrintStatus prints the synchronization status.
func (t *TablePrinter) PrintStatus(status model.SyncStatus) error {
	lastSuccess := "never"
	if status.LastSuccess != nil {
		lastSuccess = fmt.Sprintf("%s (%s)", FormatTimestamp(*status.LastSuccess), Ago(time.Now(), *status.LastSuccess))
	}
	fmt.Fprintf(t.writer, "Last success:  %s\n", lastSuccess)
	fmt.Fprintf(t.writer, "Had failure:   %t\n", status.HadFailure)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "\nSTATUS\tTASKS")
	statuses := make([]string, 0, len(status.TaskCounts))
	for s := range status.TaskCounts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%d\n", s, status.TaskCounts[model.TaskStatus(s)])
	}

	if len(status.Records) > 0 {
		fmt.Fprintln(tw, "\nRECORDS\tACTIVE\tTOTAL")
		for _, r := range status.Records {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", r.Kind, r.ActiveCount, r.TotalCount)
		}
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
