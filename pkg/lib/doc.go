// Package lib provides a Go SDK to use the bosync task queue programmatically.
//
// Applications use it to enqueue synchronization work (e.g. an order changed
// and must be imported again) and to inspect the queue without shelling out
// to the bosync CLI. The tasks are run by the bosync batches (`bosync process`
// or `bosync serve`) sharing the same data directory.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Scheduling twice the same task reuses the pending one.
//	task, err := client.ScheduleTask(ctx, lib.ScheduleTaskOpts{
//	    Type:     lib.TaskTypeImportOrder,
//	    TargetID: 42,
//	})
//
// # Retrying failed tasks
//
//	failed, _ := client.ListTasks(ctx, &lib.ListTasksOpts{Statuses: []lib.TaskStatus{lib.TaskStatusFailed}})
//	for _, t := range failed {
//	    client.RescheduleTask(ctx, lib.ScheduleTaskOpts{Type: t.Type, TargetID: t.TargetID})
//	}
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Task does not exist.
//   - [ErrNotValid]: Invalid input (e.g. unknown task type or status).
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The underlying
// storage uses SQLite with WAL mode and is shared with the bosync processes.
package lib
