package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/task"
)

// ReportErrorConfig is the configuration of the error report handler.
type ReportErrorConfig struct {
	DataDir string
	Logger  log.Logger
}

func (c *ReportErrorConfig) defaults() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "handlers.ReportError"})
	return nil
}

// ReportError writes the error bundle of a failed task where operators can find it.
type ReportError struct {
	dataDir string
	logger  log.Logger
}

// NewReportError returns a new error report handler.
func NewReportError(cfg ReportErrorConfig) (*ReportError, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ReportError{dataDir: cfg.DataDir, logger: cfg.Logger}, nil
}

func (h *ReportError) Run(ctx context.Context, t *model.Task) error {
	meta, err := task.DecodeMeta[task.ReportErrorMeta](t.MetaData)
	if err != nil {
		return err
	}

	path := conventions.ReportPath(h.dataDir, meta.FailedTaskName, ulid.Make().String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create reports dir: %w", err)
	}

	content := fmt.Sprintf("failed task id: %d\nerror kind: %s\n\n%s", meta.FailedTaskID, meta.ErrorKind, meta.Bundle)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}

	t.MetaData["report_path"] = path
	h.logger.Errorf("Task %s failed (%s), report at %s", meta.FailedTaskName, meta.ErrorKind, path)

	return nil
}
