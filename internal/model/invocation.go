package model

// Invocation is a named unit of work with its arguments, the payload sent to
// isolated subprocesses.
type Invocation struct {
	Name           string         `json:"name"`
	Arguments      []any          `json:"arguments"`
	AssocArguments map[string]any `json:"assoc_arguments"`
}
