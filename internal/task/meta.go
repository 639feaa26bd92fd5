package task

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/slok/bosync/internal/model"
)

// Well known meta data keys.
const (
	MetaKeyRemovedTaskIDs = "removed_task_ids"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// ImportMeta is the typed meta data of the import tasks.
type ImportMeta struct {
	// Limit is the maximum number of items fetched, 0 is unlimited.
	Limit    int    `json:"limit,omitempty" validate:"gte=0"`
	PageSize int    `json:"page_size,omitempty" validate:"gte=0,lte=1000"`
	Query    string `json:"query,omitempty"`
	Language string `json:"lang,omitempty" validate:"omitempty,min=2,max=5"`
	FailFast bool   `json:"fail_fast,omitempty"`
}

// ReportErrorMeta is the typed meta data of the error report tasks.
type ReportErrorMeta struct {
	FailedTaskID   int64  `json:"failed_task_id" validate:"required,gt=0"`
	FailedTaskName string `json:"failed_task_name" validate:"required"`
	ErrorKind      string `json:"error_kind" validate:"required"`
	Bundle         string `json:"bundle" validate:"required"`
}

// ExportOrderMeta is the typed meta data of the order export tasks.
type ExportOrderMeta struct {
	// OrderID is the local order identifier.
	OrderID string `json:"order_id" validate:"required"`
	// Module and function override the remote target.
	Module   string `json:"module,omitempty"`
	Function string `json:"function,omitempty"`
}

// DecodeMeta decodes and validates the typed view of a task meta data.
func DecodeMeta[T any](m model.MetaData) (*T, error) {
	var v T
	if len(m) > 0 {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("could not marshal meta data: %w", err)
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid meta data: %s: %w", err, model.ErrNotValid)
		}
	}

	if err := getValidator().Struct(&v); err != nil {
		return nil, fmt.Errorf("invalid meta data: %s: %w", err, model.ErrNotValid)
	}

	return &v, nil
}

// EncodeMeta converts a typed view into task meta data.
func EncodeMeta(v any) (model.MetaData, error) {
	if err := getValidator().Struct(v); err != nil {
		return nil, fmt.Errorf("invalid meta data: %s: %w", err, model.ErrNotValid)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("could not marshal meta data: %w", err)
	}

	m := model.MetaData{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("could not unmarshal meta data: %w", err)
	}

	return m, nil
}
