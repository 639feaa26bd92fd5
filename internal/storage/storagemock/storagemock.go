package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/slok/bosync/internal/model"
)

// MockTaskRepository is a mock implementation of storage.TaskRepository.
type MockTaskRepository struct {
	mock.Mock
}

// CreateTask provides a mock function.
func (_m *MockTaskRepository) CreateTask(ctx context.Context, t model.Task) (int64, error) {
	ret := _m.Called(ctx, t)

	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}

	return r0, ret.Error(1)
}

// GetTask provides a mock function.
func (_m *MockTaskRepository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	ret := _m.Called(ctx, id)

	var r0 *model.Task
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.Task)
	}

	return r0, ret.Error(1)
}

// UpdateTask provides a mock function.
func (_m *MockTaskRepository) UpdateTask(ctx context.Context, t model.Task) error {
	ret := _m.Called(ctx, t)

	return ret.Error(0)
}

// UpdateTaskStatus provides a mock function.
func (_m *MockTaskRepository) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errorOutput string) error {
	ret := _m.Called(ctx, id, status, errorOutput)

	return ret.Error(0)
}

// ClaimTask provides a mock function.
func (_m *MockTaskRepository) ClaimTask(ctx context.Context, id int64) (bool, error) {
	ret := _m.Called(ctx, id)

	var r0 bool
	if v := ret.Get(0); v != nil {
		r0 = v.(bool)
	}

	return r0, ret.Error(1)
}

// ListPendingTaskIDs provides a mock function.
func (_m *MockTaskRepository) ListPendingTaskIDs(ctx context.Context, q model.PendingQuery) ([]int64, error) {
	ret := _m.Called(ctx, q)

	var r0 []int64
	if v := ret.Get(0); v != nil {
		r0 = v.([]int64)
	}

	return r0, ret.Error(1)
}

// ListTasks provides a mock function.
func (_m *MockTaskRepository) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	ret := _m.Called(ctx, f)

	var r0 []model.Task
	if v := ret.Get(0); v != nil {
		r0 = v.([]model.Task)
	}

	return r0, ret.Error(1)
}

// FindActiveTaskByName provides a mock function.
func (_m *MockTaskRepository) FindActiveTaskByName(ctx context.Context, name string) (*model.Task, error) {
	ret := _m.Called(ctx, name)

	var r0 *model.Task
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.Task)
	}

	return r0, ret.Error(1)
}

// FindOrCreateTask provides a mock function.
func (_m *MockTaskRepository) FindOrCreateTask(ctx context.Context, t model.Task) (*model.Task, bool, error) {
	ret := _m.Called(ctx, t)

	var r0 *model.Task
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.Task)
	}

	return r0, ret.Bool(1), ret.Error(2)
}

// DeleteTasks provides a mock function.
func (_m *MockTaskRepository) DeleteTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	ret := _m.Called(ctx, f)

	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}

	return r0, ret.Error(1)
}

// CountTasks provides a mock function.
func (_m *MockTaskRepository) CountTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	ret := _m.Called(ctx, f)

	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}

	return r0, ret.Error(1)
}

// MockKVRepository is a mock implementation of storage.KVRepository.
type MockKVRepository struct {
	mock.Mock
}

// SetValue provides a mock function.
func (_m *MockKVRepository) SetValue(ctx context.Context, key string, value string, ttl time.Duration) error {
	ret := _m.Called(ctx, key, value, ttl)

	return ret.Error(0)
}

// GetValue provides a mock function.
func (_m *MockKVRepository) GetValue(ctx context.Context, key string) (string, error) {
	ret := _m.Called(ctx, key)

	var r0 string
	if v := ret.Get(0); v != nil {
		r0 = v.(string)
	}

	return r0, ret.Error(1)
}

// DeleteExpired provides a mock function.
func (_m *MockKVRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ret := _m.Called(ctx)

	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}

	return r0, ret.Error(1)
}

// MockRecordRepository is a mock implementation of storage.RecordRepository.
type MockRecordRepository struct {
	mock.Mock
}

// UpsertRecord provides a mock function.
func (_m *MockRecordRepository) UpsertRecord(ctx context.Context, r model.LocalRecord) error {
	ret := _m.Called(ctx, r)

	return ret.Error(0)
}

// GetRecord provides a mock function.
func (_m *MockRecordRepository) GetRecord(ctx context.Context, kind string, externalID string) (*model.LocalRecord, error) {
	ret := _m.Called(ctx, kind, externalID)

	var r0 *model.LocalRecord
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.LocalRecord)
	}

	return r0, ret.Error(1)
}

// DeleteRecord provides a mock function.
func (_m *MockRecordRepository) DeleteRecord(ctx context.Context, kind string, externalID string) error {
	ret := _m.Called(ctx, kind, externalID)

	return ret.Error(0)
}

// ListRecordIDs provides a mock function.
func (_m *MockRecordRepository) ListRecordIDs(ctx context.Context, kind string, activeOnly bool) ([]string, error) {
	ret := _m.Called(ctx, kind, activeOnly)

	var r0 []string
	if v := ret.Get(0); v != nil {
		r0 = v.([]string)
	}

	return r0, ret.Error(1)
}

// DeactivateMissing provides a mock function.
func (_m *MockRecordRepository) DeactivateMissing(ctx context.Context, kind string, keep []string) (int64, error) {
	ret := _m.Called(ctx, kind, keep)

	var r0 int64
	if v := ret.Get(0); v != nil {
		r0 = v.(int64)
	}

	return r0, ret.Error(1)
}

// RecountAggregates provides a mock function.
func (_m *MockRecordRepository) RecountAggregates(ctx context.Context) error {
	ret := _m.Called(ctx)

	return ret.Error(0)
}

// GetAggregate provides a mock function.
func (_m *MockRecordRepository) GetAggregate(ctx context.Context, kind string) (*model.RecordAggregate, error) {
	ret := _m.Called(ctx, kind)

	var r0 *model.RecordAggregate
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.RecordAggregate)
	}

	return r0, ret.Error(1)
}
