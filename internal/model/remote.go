package model

// SortDirection is the direction of a remote sort.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is a remote sort descriptor.
type Sort struct {
	Name string        `json:"name"`
	Dir  SortDirection `json:"dir"`
}

// Filter is a remote predicate descriptor, either Val or MultiVal is used.
type Filter struct {
	Name     string `json:"name"`
	Val      any    `json:"val,omitempty"`
	MultiVal []any  `json:"multi_val,omitempty"`
}

// Record is a single remote record.
type Record map[string]any
