package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

// Importer runs paginated imports.
type Importer interface {
	Run(ctx context.Context, opts importer.Options) (*importer.Result, error)
}

// ImportDefaults are the import options used when the task doesn't set them.
type ImportDefaults struct {
	PageSize int
	FetchMax int
	Language string
}

// ImportConfig is the configuration of the import handlers.
type ImportConfig struct {
	Importer Importer
	Records  storage.RecordRepository
	Defaults ImportDefaults
	Logger   log.Logger
}

func (c *ImportConfig) defaults() error {
	if c.Importer == nil {
		return fmt.Errorf("importer is required")
	}
	if c.Records == nil {
		return fmt.Errorf("record repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "handlers.Import"})
	return nil
}

// EntityImport imports a complete remote collection into the local store.
type EntityImport struct {
	taskType model.TaskType
	entity   Entity
	importer Importer
	records  storage.RecordRepository
	defaults ImportDefaults
	logger   log.Logger
}

// NewEntityImport returns the handler of a bulk import task type.
func NewEntityImport(t model.TaskType, cfg ImportConfig) (*EntityImport, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e, err := EntityOf(t)
	if err != nil {
		return nil, err
	}

	return &EntityImport{
		taskType: t,
		entity:   e,
		importer: cfg.Importer,
		records:  cfg.Records,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
	}, nil
}

func (h *EntityImport) Run(ctx context.Context, t *model.Task) error {
	meta, err := task.DecodeMeta[task.ImportMeta](t.MetaData)
	if err != nil {
		return err
	}

	res, err := h.Import(ctx, *meta)
	if res != nil {
		setImportMeta(t, res)
	}
	return err
}

// Import runs the paginated import of the entity, the job class is the task type
// so it excludes any queued run of the same type.
func (h *EntityImport) Import(ctx context.Context, meta task.ImportMeta) (*importer.Result, error) {
	opts := importer.Options{
		Name:       string(h.taskType),
		Module:     h.entity.Module,
		Function:   h.entity.Function,
		Query:      meta.Query,
		Language:   firstString(meta.Language, h.defaults.Language),
		Sorts:      h.entity.Sorts,
		PageSize:   firstInt(meta.PageSize, h.defaults.PageSize),
		FetchMax:   firstInt(meta.Limit, h.defaults.FetchMax),
		FailFast:   meta.FailFast,
		RecordKind: h.entity.Kind,
		Process:    upsertFunc(h.records, h.entity.Kind),
	}

	// Only a complete listing knows what is missing upstream.
	if opts.FetchMax == 0 && opts.Query == "" {
		opts.AfterRun = func(ctx context.Context, ids []string) error {
			n, err := h.records.DeactivateMissing(ctx, h.entity.Kind, ids)
			if err != nil {
				return err
			}
			if n > 0 {
				h.logger.Infof("%d %s missing upstream deactivated", n, h.entity.Kind)
			}
			return nil
		}
	}

	return h.importer.Run(ctx, opts)
}

// SingleImport imports one remote record by the task target id.
type SingleImport struct {
	entity   Entity
	importer Importer
	records  storage.RecordRepository
	defaults ImportDefaults
	logger   log.Logger
}

// NewSingleImport returns the handler of a single record import task type.
func NewSingleImport(t model.TaskType, cfg ImportConfig) (*SingleImport, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e, err := EntityOf(t)
	if err != nil {
		return nil, err
	}

	return &SingleImport{
		entity:   e,
		importer: cfg.Importer,
		records:  cfg.Records,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
	}, nil
}

func (h *SingleImport) Run(ctx context.Context, t *model.Task) error {
	if t.TargetID <= 0 {
		return fmt.Errorf("%s requires a target id: %w", t.Type, model.ErrNotValid)
	}

	meta, err := task.DecodeMeta[task.ImportMeta](t.MetaData)
	if err != nil {
		return err
	}

	id := fmt.Sprint(t.TargetID)
	res, err := h.importer.Run(ctx, importer.Options{
		Name:       t.Name,
		Module:     h.entity.Module,
		Function:   h.entity.Function,
		Language:   firstString(meta.Language, h.defaults.Language),
		Filters:    []model.Filter{{Name: "id", Val: t.TargetID}},
		PageSize:   1,
		FetchMax:   1,
		FailFast:   true,
		RecordKind: h.entity.Kind,
		Process:    upsertFunc(h.records, h.entity.Kind),
	})
	if err != nil {
		return err
	}
	setImportMeta(t, res)

	// Gone upstream.
	if res.Fetched == 0 {
		err := h.records.DeleteRecord(ctx, h.entity.Kind, id)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("could not delete %s %s: %w", h.entity.Kind, id, err)
		}
		h.logger.Infof("%s %s missing upstream, deleted", h.entity.Kind, id)
	}

	return nil
}

func upsertFunc(records storage.RecordRepository, kind string) importer.ProcessFunc {
	return func(ctx context.Context, item model.Record) error {
		v, ok := item["id"]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return fmt.Errorf("%s item without id: %w", kind, model.ErrItemNotValid)
		}

		return records.UpsertRecord(ctx, model.LocalRecord{
			Kind:       kind,
			ExternalID: fmt.Sprint(v),
			Data:       item,
			Active:     true,
			UpdatedAt:  time.Now().UTC(),
		})
	}
}

func setImportMeta(t *model.Task, res *importer.Result) {
	if t.MetaData == nil {
		t.MetaData = model.MetaData{}
	}
	t.MetaData["imported"] = res.Processed
	t.MetaData["invalid"] = res.Failed
	t.MetaData["pages"] = res.Pages
}

func firstInt(vs ...int) int {
	for _, v := range vs {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstString(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
