package runnermock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/bosync/internal/model"
)

// MockRunner is a mock implementation of runner.Runner.
type MockRunner struct {
	mock.Mock
}

// Run provides a mock function.
func (_m *MockRunner) Run(ctx context.Context, inv model.Invocation) (int, error) {
	ret := _m.Called(ctx, inv)

	var r0 int
	if v := ret.Get(0); v != nil {
		r0 = v.(int)
	}

	return r0, ret.Error(1)
}
