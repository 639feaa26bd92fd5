package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/slok/bosync/internal/model"
)

// ErrorBundle returns the human readable failure detail of a task: its
// context, the error chain and the stack where the failure was handled.
func ErrorBundle(t *model.Task, err error) string {
	var b strings.Builder

	fmt.Fprintf(&b, "task: %s (id %d, type %s, group %s, target %d)\n", t.Name, t.ID, t.Type, t.TypeGroup, t.TargetID)
	fmt.Fprintf(&b, "times ran: %d\n", t.TimesRan)
	if len(t.MetaData) > 0 {
		if meta, merr := json.Marshal(t.MetaData); merr == nil {
			fmt.Fprintf(&b, "meta data: %s\n", meta)
		}
	}
	fmt.Fprintf(&b, "error kind: %s\n", model.ErrorKind(err))
	fmt.Fprintf(&b, "error: %s\n", err)

	b.WriteString("error chain:\n")
	writeChain(&b, err, 1)

	b.WriteString("stack:\n")
	b.Write(debug.Stack())

	return b.String()
}

func writeChain(b *strings.Builder, err error, depth int) {
	for err != nil {
		fmt.Fprintf(b, "%s- %T: %s\n", strings.Repeat("  ", depth), err, err)

		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range multi.Unwrap() {
				writeChain(b, e, depth+1)
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
