package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/model"
)

type ScheduleCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	reschedule bool
	taskType   string
	targetID   int64
	meta       []string
	force      bool
	format     string
}

// NewScheduleCommand returns the schedule command.
func NewScheduleCommand(rootCmd *RootCommand, app *kingpin.Application) *ScheduleCommand {
	c := &ScheduleCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("schedule", "Schedule a task, an already pending task with the same name is reused.")
	c.register()
	c.Cmd.Flag("force", "Always add a new task even if one with the same name is pending.").BoolVar(&c.force)

	return c
}

// NewRescheduleCommand returns the reschedule command.
func NewRescheduleCommand(rootCmd *RootCommand, app *kingpin.Application) *ScheduleCommand {
	c := &ScheduleCommand{rootCmd: rootCmd, reschedule: true}

	c.Cmd = app.Command("reschedule", "Schedule a task replacing every existing task with the same name.")
	c.register()

	return c
}

func (c *ScheduleCommand) register() {
	types := make([]string, 0, len(model.TaskTypes))
	for _, t := range model.TaskTypes {
		types = append(types, string(t))
	}

	c.Cmd.Arg("type", "Task type.").Required().EnumVar(&c.taskType, types...)
	c.Cmd.Flag("target", "Target entity id, 0 targets the whole collection.").Short('t').Default("0").Int64Var(&c.targetID)
	c.Cmd.Flag("meta", "Task meta data as KEY=VALUE, JSON values are decoded (repeatable).").Short('m').StringsVar(&c.meta)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")
}

func (c ScheduleCommand) Name() string { return c.Cmd.FullCommand() }

func (c ScheduleCommand) Run(ctx context.Context) error {
	meta, err := parseMetaSpecs(c.meta)
	if err != nil {
		return err
	}

	app, err := newQueueApp(ctx, *c.rootCmd)
	if err != nil {
		return err
	}
	defer app.Close()

	req := schedule.Request{
		Type:     model.TaskType(c.taskType),
		TargetID: c.targetID,
		MetaData: meta,
		ForceAdd: c.force,
	}

	var t *model.Task
	if c.reschedule {
		t, err = app.scheduler.Reschedule(ctx, req)
	} else {
		t, err = app.scheduler.Schedule(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("could not schedule task: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintTask(*t); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	return nil
}

// parseMetaSpecs parses `KEY=VALUE` specs into task meta data. Values that are
// valid JSON are decoded (numbers, booleans, lists...), the rest are strings.
// Later specs override earlier ones.
func parseMetaSpecs(specs []string) (model.MetaData, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	meta := make(model.MetaData, len(specs))
	for _, spec := range specs {
		key, raw, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid meta %q, must be KEY=VALUE", spec)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid meta %q, key can't be empty", spec)
		}

		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		meta[key] = v
	}

	return meta, nil
}
