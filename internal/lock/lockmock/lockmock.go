package lockmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/bosync/internal/lock"
)

// MockLocker is a mock implementation of lock.Locker.
type MockLocker struct {
	mock.Mock
}

// Acquire provides a mock function.
func (_m *MockLocker) Acquire(ctx context.Context, scope string) (lock.Lock, error) {
	ret := _m.Called(ctx, scope)

	var r0 lock.Lock
	if v := ret.Get(0); v != nil {
		r0 = v.(lock.Lock)
	}

	return r0, ret.Error(1)
}

// MockLock is a mock implementation of lock.Lock.
type MockLock struct {
	mock.Mock
}

// Scope provides a mock function.
func (_m *MockLock) Scope() string {
	ret := _m.Called()

	var r0 string
	if v := ret.Get(0); v != nil {
		r0 = v.(string)
	}

	return r0
}

// Holder provides a mock function.
func (_m *MockLock) Holder() string {
	ret := _m.Called()

	var r0 string
	if v := ret.Get(0); v != nil {
		r0 = v.(string)
	}

	return r0
}

// Release provides a mock function.
func (_m *MockLock) Release() error {
	ret := _m.Called()

	return ret.Error(0)
}
