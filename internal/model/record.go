package model

import "time"

// LocalRecord is an entity in the local store keyed by its remote identifier.
type LocalRecord struct {
	Kind       string
	ExternalID string
	Data       Record
	Active     bool
	UpdatedAt  time.Time
}

// RecordAggregate are the derived counters of a record kind.
type RecordAggregate struct {
	Kind        string
	ActiveCount int64
	TotalCount  int64
	UpdatedAt   time.Time
}
