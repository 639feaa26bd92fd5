package remotemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/bosync/internal/remote"
)

// MockClient is a mock implementation of remote.Client.
type MockClient struct {
	mock.Mock
}

// Call provides a mock function.
func (_m *MockClient) Call(ctx context.Context, module string, function string, q remote.Query) (*remote.Page, error) {
	ret := _m.Called(ctx, module, function, q)

	var r0 *remote.Page
	if v := ret.Get(0); v != nil {
		r0 = v.(*remote.Page)
	}

	return r0, ret.Error(1)
}

// Save provides a mock function.
func (_m *MockClient) Save(ctx context.Context, module string, function string, payload map[string]any) (map[string]any, error) {
	ret := _m.Called(ctx, module, function, payload)

	var r0 map[string]any
	if v := ret.Get(0); v != nil {
		r0 = v.(map[string]any)
	}

	return r0, ret.Error(1)
}
