package model

// OutcomeKind is the result class of a run.
type OutcomeKind string

const (
	OutcomeRan     OutcomeKind = "ran"
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome is the typed result of a protected run (batch, import...).
// Lock contention is a skip, not a failure.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// Ran returns a ran outcome.
func Ran() Outcome { return Outcome{Kind: OutcomeRan} }

// Skipped returns a skipped outcome with a reason.
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

// Failed returns a failed outcome.
func Failed(err error) Outcome {
	o := Outcome{Kind: OutcomeFailed, Err: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}
