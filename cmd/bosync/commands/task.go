package commands

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/model"
)

// NewTaskCommand returns the task parent command.
func NewTaskCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("task", "Inspect and manage the queued tasks.")
}

// taskFilterFlags are the task selection flags shared by the task subcommands.
type taskFilterFlags struct {
	ids      []int64
	statuses []string
	types    []string
	groups   []string
	target   int64
	limit    int
}

func (f *taskFilterFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("id", "Task id (repeatable).").Int64ListVar(&f.ids)
	cmd.Flag("status", "Task status: new, processing, failed, success (repeatable).").Short('s').StringsVar(&f.statuses)
	cmd.Flag("type", "Task type (repeatable).").StringsVar(&f.types)
	cmd.Flag("group", "Task type group (repeatable).").StringsVar(&f.groups)
	cmd.Flag("target", "Task target id.").Default("-1").Int64Var(&f.target)
	cmd.Flag("limit", "Maximum number of tasks, 0 is unlimited.").Default("0").IntVar(&f.limit)
}

func (f taskFilterFlags) empty() bool {
	return len(f.ids) == 0 && len(f.statuses) == 0 && len(f.types) == 0 && len(f.groups) == 0 && f.target < 0
}

func (f taskFilterFlags) filter() (model.TaskFilter, error) {
	tf := model.TaskFilter{
		IDs:        f.ids,
		TypeGroups: f.groups,
		Limit:      f.limit,
	}

	for _, s := range f.statuses {
		st := model.TaskStatus(strings.ToLower(s))
		if err := st.Validate(); err != nil {
			return model.TaskFilter{}, fmt.Errorf("invalid status filter: %w", err)
		}
		tf.Statuses = append(tf.Statuses, st)
	}

	for _, t := range f.types {
		tt := model.TaskType(t)
		if err := tt.Validate(); err != nil {
			return model.TaskFilter{}, fmt.Errorf("invalid type filter: %w", err)
		}
		tf.Types = append(tf.Types, tt)
	}

	if f.target >= 0 {
		target := f.target
		tf.TargetID = &target
	}

	return tf, nil
}
