// Package handlers has the task handlers that synchronize the local store
// with the remote backoffice.
package handlers

import (
	"fmt"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

// Config is the configuration of every handler.
type Config struct {
	Importer Importer
	Remote   remote.Saver
	Records  storage.RecordRepository
	Import   ImportDefaults
	DataDir  string
	Logger   log.Logger
}

// Register registers the handlers of all the task types.
func Register(r *task.Registry, cfg Config) error {
	importCfg := ImportConfig{
		Importer: cfg.Importer,
		Records:  cfg.Records,
		Defaults: cfg.Import,
		Logger:   cfg.Logger,
	}

	for _, t := range []model.TaskType{model.TaskTypeImportProducts, model.TaskTypeImportCustomers, model.TaskTypeImportCategories} {
		err := r.Register(t, func() (task.Handler, error) { return NewEntityImport(t, importCfg) })
		if err != nil {
			return fmt.Errorf("could not register %s: %w", t, err)
		}
	}

	for _, t := range []model.TaskType{model.TaskTypeImportProduct, model.TaskTypeImportOrder} {
		err := r.Register(t, func() (task.Handler, error) { return NewSingleImport(t, importCfg) })
		if err != nil {
			return fmt.Errorf("could not register %s: %w", t, err)
		}
	}

	err := r.Register(model.TaskTypeExportOrder, func() (task.Handler, error) {
		return NewExportOrder(ExportOrderConfig{Saver: cfg.Remote, Records: cfg.Records, Logger: cfg.Logger})
	})
	if err != nil {
		return fmt.Errorf("could not register %s: %w", model.TaskTypeExportOrder, err)
	}

	err = r.Register(model.TaskTypeReportError, func() (task.Handler, error) {
		return NewReportError(ReportErrorConfig{DataDir: cfg.DataDir, Logger: cfg.Logger})
	})
	if err != nil {
		return fmt.Errorf("could not register %s: %w", model.TaskTypeReportError, err)
	}

	return nil
}
