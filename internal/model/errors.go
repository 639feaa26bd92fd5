package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrLockActive is returned when another process holds the lock of a job class.
	ErrLockActive = errors.New("lock active")
	// ErrLockTimeout is returned when the lock could not be acquired in the allowed wait.
	ErrLockTimeout = errors.New("lock timeout")
	// ErrConnectivityTimeout is returned when a remote call timed out.
	ErrConnectivityTimeout = errors.New("connectivity timeout")
	// ErrItemNotValid is returned when a single imported record is malformed or unsupported.
	ErrItemNotValid = errors.New("item not valid")
	// ErrUnknownTaskType is returned when there is no handler for a task type.
	ErrUnknownTaskType = errors.New("unknown task type")
	// ErrTaskRescheduled is returned when a failed task has been put back in the queue.
	ErrTaskRescheduled = errors.New("task rescheduled")
)

// Error kinds, stable markers used to carry an error class across process boundaries.
const (
	ErrorKindLockActive          = "LockActive"
	ErrorKindLockTimeout         = "LockTimeout"
	ErrorKindConnectivityTimeout = "ConnectivityTimeout"
	ErrorKindTaskRescheduled     = "TaskRescheduled"
	ErrorKindUnknownTaskType     = "UnknownTaskType"
	ErrorKindItemNotValid        = "ItemNotValid"
	ErrorKindGeneric             = "Error"
)

var errorKinds = []struct {
	kind string
	err  error
}{
	// Order matters, a rescheduled timeout is more specific than a timeout.
	{ErrorKindTaskRescheduled, ErrTaskRescheduled},
	{ErrorKindLockActive, ErrLockActive},
	{ErrorKindLockTimeout, ErrLockTimeout},
	{ErrorKindConnectivityTimeout, ErrConnectivityTimeout},
	{ErrorKindUnknownTaskType, ErrUnknownTaskType},
	{ErrorKindItemNotValid, ErrItemNotValid},
}

// ErrorKinds returns all the kinds that apply to an error, most specific first.
func ErrorKinds(err error) []string {
	if err == nil {
		return nil
	}

	var kinds []string
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			kinds = append(kinds, ek.kind)
		}
	}
	if len(kinds) == 0 {
		kinds = append(kinds, ErrorKindGeneric)
	}

	return kinds
}

// ErrorKind returns the most specific kind of an error.
func ErrorKind(err error) string {
	kinds := ErrorKinds(err)
	if len(kinds) == 0 {
		return ""
	}
	return kinds[0]
}

// ErrorFromKind returns the sentinel error for a kind, nil if unknown.
func ErrorFromKind(kind string) error {
	for _, ek := range errorKinds {
		if ek.kind == kind {
			return ek.err
		}
	}
	return nil
}

// IsLockError returns true if the error means another run holds the lock.
func IsLockError(err error) bool {
	return errors.Is(err, ErrLockActive) || errors.Is(err, ErrLockTimeout)
}
