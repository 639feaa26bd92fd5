package status_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/app/status"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config status.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: status.ServiceConfig{
				TaskRepository: &storagemock.MockTaskRepository{},
				KVRepository:   &storagemock.MockKVRepository{},
				Logger:         log.Noop,
			},
			expErr: false,
		},
		"missing task repository should fail": {
			config: status.ServiceConfig{
				KVRepository: &storagemock.MockKVRepository{},
			},
			expErr: true,
		},
		"missing kv repository should fail": {
			config: status.ServiceConfig{
				TaskRepository: &storagemock.MockTaskRepository{},
			},
			expErr: true,
		},
		"record kinds without record repository should fail": {
			config: status.ServiceConfig{
				TaskRepository: &storagemock.MockTaskRepository{},
				KVRepository:   &storagemock.MockKVRepository{},
				RecordKinds:    []string{"products"},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := status.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func statusFilter(s model.TaskStatus) model.TaskFilter {
	return model.TaskFilter{Statuses: []model.TaskStatus{s}}
}

func TestService_Run(t *testing.T) {
	lastSuccess := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	tests := map[string]struct {
		mock      func(tm *storagemock.MockTaskRepository, kvm *storagemock.MockKVRepository, rm *storagemock.MockRecordRepository)
		expResult func() *model.SyncStatus
		expErr    bool
	}{
		"status with everything set": {
			mock: func(tm *storagemock.MockTaskRepository, kvm *storagemock.MockKVRepository, rm *storagemock.MockRecordRepository) {
				kvm.On("GetValue", mock.Anything, conventions.KVKeyLastSuccess).Once().Return(lastSuccess.Format(time.RFC3339), nil)
				kvm.On("GetValue", mock.Anything, conventions.KVKeyHadFailure).Once().Return("true", nil)
				tm.On("CountTasks", mock.Anything, statusFilter(model.TaskStatusNew)).Once().Return(int64(4), nil)
				tm.On("CountTasks", mock.Anything, statusFilter(model.TaskStatusProcessing)).Once().Return(int64(1), nil)
				tm.On("CountTasks", mock.Anything, statusFilter(model.TaskStatusFailed)).Once().Return(int64(2), nil)
				tm.On("CountTasks", mock.Anything, statusFilter(model.TaskStatusSuccess)).Once().Return(int64(30), nil)
				rm.On("GetAggregate", mock.Anything, "products").Once().Return(&model.RecordAggregate{Kind: "products", ActiveCount: 9, TotalCount: 10}, nil)
				rm.On("GetAggregate", mock.Anything, "orders").Once().Return(nil, fmt.Errorf("aggregate orders: %w", model.ErrNotFound))
			},
			expResult: func() *model.SyncStatus {
				return &model.SyncStatus{
					LastSuccess: &lastSuccess,
					HadFailure:  true,
					TaskCounts: map[model.TaskStatus]int64{
						model.TaskStatusNew:        4,
						model.TaskStatusProcessing: 1,
						model.TaskStatusFailed:     2,
						model.TaskStatusSuccess:    30,
					},
					Records: []model.RecordAggregate{{Kind: "products", ActiveCount: 9, TotalCount: 10}},
				}
			},
		},
		"status before any batch": {
			mock: func(tm *storagemock.MockTaskRepository, kvm *storagemock.MockKVRepository, rm *storagemock.MockRecordRepository) {
				kvm.On("GetValue", mock.Anything, mock.Anything).Return("", model.ErrNotFound)
				tm.On("CountTasks", mock.Anything, mock.Anything).Return(int64(0), nil)
				rm.On("GetAggregate", mock.Anything, mock.Anything).Return(nil, model.ErrNotFound)
			},
			expResult: func() *model.SyncStatus {
				return &model.SyncStatus{
					TaskCounts: map[model.TaskStatus]int64{
						model.TaskStatusNew:        0,
						model.TaskStatusProcessing: 0,
						model.TaskStatusFailed:     0,
						model.TaskStatusSuccess:    0,
					},
				}
			},
		},
		"kv error should fail": {
			mock: func(tm *storagemock.MockTaskRepository, kvm *storagemock.MockKVRepository, rm *storagemock.MockRecordRepository) {
				kvm.On("GetValue", mock.Anything, conventions.KVKeyLastSuccess).Once().Return("", fmt.Errorf("something"))
			},
			expErr: true,
		},
		"count error should fail": {
			mock: func(tm *storagemock.MockTaskRepository, kvm *storagemock.MockKVRepository, rm *storagemock.MockRecordRepository) {
				kvm.On("GetValue", mock.Anything, mock.Anything).Return("", model.ErrNotFound)
				tm.On("CountTasks", mock.Anything, mock.Anything).Once().Return(int64(0), fmt.Errorf("something"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			tm := &storagemock.MockTaskRepository{}
			kvm := &storagemock.MockKVRepository{}
			rm := &storagemock.MockRecordRepository{}
			test.mock(tm, kvm, rm)

			svc, err := status.NewService(status.ServiceConfig{
				TaskRepository:   tm,
				KVRepository:     kvm,
				RecordRepository: rm,
				RecordKinds:      []string{"products", "orders"},
				Logger:           log.Noop,
			})
			require.NoError(err)

			result, err := svc.Run(context.Background())

			if test.expErr {
				assert.Error(err)
				return
			}

			require.NoError(err)
			assert.Equal(test.expResult(), result)
			tm.AssertExpectations(t)
			kvm.AssertExpectations(t)
			rm.AssertExpectations(t)
		})
	}
}
