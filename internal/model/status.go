package model

import "time"

// SyncStatus is the summary of the synchronization state.
type SyncStatus struct {
	// LastSuccess is the last time a task succeeded, nil if never.
	LastSuccess *time.Time
	// HadFailure is set when the last batch had a failure and the flag didn't expire.
	HadFailure bool
	TaskCounts map[TaskStatus]int64
	Records    []RecordAggregate
}
