package handlers

import (
	"context"
	"fmt"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
)

const (
	exportOrderModule   = "order"
	exportOrderFunction = "save"
)

// ExportOrderConfig is the configuration of the order export handler.
type ExportOrderConfig struct {
	Saver   remote.Saver
	Records storage.RecordRepository
	Logger  log.Logger
}

func (c *ExportOrderConfig) defaults() error {
	if c.Saver == nil {
		return fmt.Errorf("remote saver is required")
	}
	if c.Records == nil {
		return fmt.Errorf("record repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "handlers.ExportOrder"})
	return nil
}

// ExportOrder pushes a local order to the remote.
type ExportOrder struct {
	saver   remote.Saver
	records storage.RecordRepository
	logger  log.Logger
}

// NewExportOrder returns a new order export handler.
func NewExportOrder(cfg ExportOrderConfig) (*ExportOrder, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ExportOrder{
		saver:   cfg.Saver,
		records: cfg.Records,
		logger:  cfg.Logger,
	}, nil
}

func (h *ExportOrder) Run(ctx context.Context, t *model.Task) error {
	meta, err := task.DecodeMeta[task.ExportOrderMeta](t.MetaData)
	if err != nil {
		return err
	}

	order, err := h.records.GetRecord(ctx, KindOrders, meta.OrderID)
	if err != nil {
		return fmt.Errorf("could not get order %s: %w", meta.OrderID, err)
	}

	module := firstString(meta.Module, exportOrderModule)
	function := firstString(meta.Function, exportOrderFunction)
	resp, err := h.saver.Save(ctx, module, function, map[string]any(order.Data))
	if err != nil {
		return fmt.Errorf("could not export order %s: %w", meta.OrderID, err)
	}

	if id, ok := resp["id"]; ok {
		t.MetaData["remote_id"] = fmt.Sprint(id)
	}
	h.logger.Infof("Order %s exported", meta.OrderID)

	return nil
}
