package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/task"
	"github.com/slok/bosync/internal/task/handlers"
)

var importTypes = map[string]model.TaskType{
	handlers.KindProducts:   model.TaskTypeImportProducts,
	handlers.KindCustomers:  model.TaskTypeImportCustomers,
	handlers.KindCategories: model.TaskTypeImportCategories,
}

type ImportCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	kind       string
	limit      int
	pageSize   int
	query      string
	lang       string
	failFast   bool
	noProgress bool
	format     string
}

// NewImportCommand returns the import command.
func NewImportCommand(rootCmd *RootCommand, app *kingpin.Application) *ImportCommand {
	c := &ImportCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("import", "Run a paginated import right away, without the queue.")
	c.Cmd.Arg("kind", "Kind of records imported.").Required().EnumVar(&c.kind, handlers.KindProducts, handlers.KindCustomers, handlers.KindCategories)
	c.Cmd.Flag("limit", "Maximum number of fetched items, 0 is unlimited.").Short('l').Default("0").IntVar(&c.limit)
	c.Cmd.Flag("page-size", "Items requested per page, 0 uses the configured one.").Default("0").IntVar(&c.pageSize)
	c.Cmd.Flag("query", "Remote search query.").Short('q').StringVar(&c.query)
	c.Cmd.Flag("lang", "Remote language code.").StringVar(&c.lang)
	c.Cmd.Flag("fail-fast", "Stop on the first invalid item.").BoolVar(&c.failFast)
	c.Cmd.Flag("no-progress", "Disable the progress output.").BoolVar(&c.noProgress)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ImportCommand) Name() string { return c.Cmd.FullCommand() }

func (c ImportCommand) Run(ctx context.Context) error {
	meta := task.ImportMeta{
		Limit:    c.limit,
		PageSize: c.pageSize,
		Query:    c.query,
		Language: c.lang,
		FailFast: c.failFast,
	}
	if _, err := task.EncodeMeta(meta); err != nil {
		return err
	}

	var progress importer.ProgressReporter = importer.NoopProgress
	if !c.noProgress && c.format != "json" {
		progress = importer.NewTerminalProgress(c.rootCmd.Stderr)
	}

	app, err := newSyncApp(ctx, *c.rootCmd, syncAppOptions{Progress: progress, InProcess: true})
	if err != nil {
		return err
	}
	defer app.Close()

	tt := importTypes[c.kind]
	h, err := handlers.NewEntityImport(tt, handlers.ImportConfig{
		Importer: app.handlers.Importer,
		Records:  app.handlers.Records,
		Defaults: app.handlers.Import,
		Logger:   c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create import: %w", err)
	}

	res, err := h.Import(ctx, meta)
	if res != nil {
		if perr := newPrinter(c.format, c.rootCmd.Stdout).PrintImportResult(string(tt), *res); perr != nil {
			return fmt.Errorf("could not print import result: %w", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if err := app.repo.RecountAggregates(ctx); err != nil {
		return fmt.Errorf("could not recount records: %w", err)
	}

	return nil
}
