package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage"
	"github.com/slok/bosync/internal/task"
	"github.com/slok/bosync/internal/task/syncctx"
)

// Scheduler schedules tasks.
type Scheduler interface {
	Schedule(ctx context.Context, req schedule.Request) (*model.Task, error)
}

// ExportingRecordRepository schedules an order export every time an order
// changes locally. Changes applied by an import run are not exported back.
type ExportingRecordRepository struct {
	storage.RecordRepository
	scheduler Scheduler
	logger    log.Logger
}

// NewExportingRecordRepository wraps a record repository with the order change listener.
func NewExportingRecordRepository(repo storage.RecordRepository, scheduler Scheduler, logger log.Logger) *ExportingRecordRepository {
	if logger == nil {
		logger = log.Noop
	}

	return &ExportingRecordRepository{
		RecordRepository: repo,
		scheduler:        scheduler,
		logger:           logger.WithValues(log.Kv{"svc": "handlers.ExportingRecordRepository"}),
	}
}

func (r *ExportingRecordRepository) UpsertRecord(ctx context.Context, rec model.LocalRecord) error {
	if err := r.RecordRepository.UpsertRecord(ctx, rec); err != nil {
		return err
	}

	if rec.Kind != KindOrders || syncctx.IsApplying(ctx, rec.Kind, rec.ExternalID) {
		return nil
	}

	meta, err := task.EncodeMeta(task.ExportOrderMeta{OrderID: rec.ExternalID})
	if err != nil {
		return err
	}

	// Non numeric order ids are exported without target.
	targetID, _ := strconv.ParseInt(rec.ExternalID, 10, 64)
	t, err := r.scheduler.Schedule(ctx, schedule.Request{
		Type:     model.TaskTypeExportOrder,
		TargetID: targetID,
		MetaData: meta,
	})
	if err != nil {
		return fmt.Errorf("could not schedule order %s export: %w", rec.ExternalID, err)
	}
	r.logger.Debugf("Order %s changed, export task %d scheduled", rec.ExternalID, t.ID)

	return nil
}
