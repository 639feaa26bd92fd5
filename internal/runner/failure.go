package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/slok/bosync/internal/model"
)

var kindMarkerRegexp = regexp.MustCompile(`\[kind=([A-Za-z]+)\]`)

// KindMarker returns the stderr marker of an error kind.
func KindMarker(kind string) string {
	return "[kind=" + kind + "]"
}

// FormatFailure returns the line a child prints on stderr when it fails, it
// carries every kind of the error so the parent can reclassify it.
func FormatFailure(err error) string {
	var b strings.Builder
	for _, k := range model.ErrorKinds(err) {
		b.WriteString(KindMarker(k))
	}
	b.WriteString(" ")
	b.WriteString(err.Error())
	return b.String()
}

// SubProcessFailure is returned when an isolated child exits with a non zero code.
type SubProcessFailure struct {
	Invocation string
	ExitCode   int
	Stdout     string
	Stderr     string
	// Err is the wait error, e.g. a timeout kill.
	Err error
}

func (e *SubProcessFailure) Error() string {
	msg := fmt.Sprintf("subprocess %q failed with exit code %d", e.Invocation, e.ExitCode)
	if line := e.failureLine(); line != "" {
		msg += ": " + line
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap reclassifies the failure with the error kinds found on the child stderr.
func (e *SubProcessFailure) Unwrap() []error {
	var errs []error
	seen := map[string]bool{}
	for _, m := range kindMarkerRegexp.FindAllStringSubmatch(e.Stderr, -1) {
		kind := m[1]
		if seen[kind] {
			continue
		}
		seen[kind] = true
		if err := model.ErrorFromKind(kind); err != nil {
			errs = append(errs, err)
		}
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Kinds returns the error kinds reported by the child.
func (e *SubProcessFailure) Kinds() []string {
	var kinds []string
	for _, m := range kindMarkerRegexp.FindAllStringSubmatch(e.Stderr, -1) {
		kinds = append(kinds, m[1])
	}
	return kinds
}

// failureLine returns the last stderr line with a kind marker.
func (e *SubProcessFailure) failureLine() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if kindMarkerRegexp.MatchString(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
