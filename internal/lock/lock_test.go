package lock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/lock/lockmock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

func TestScopeKey(t *testing.T) {
	tests := map[string]struct {
		name string
		exp  string
	}{
		"Empty name has its own key":    {name: "  ", exp: "_"},
		"Names are lowercased":          {name: "ImportProducts", exp: "importproducts"},
		"Safe names are kept":           {name: "batch-process", exp: "batch-process"},
		"Unsafe characters are escaped": {name: "import/products run", exp: "import_2fproducts_20run"},
		"Task names are escaped":        {name: "import-order::1", exp: "import-order_3a_3a1"},
		"Underscores are escaped":       {name: "import-order__1", exp: "import-order_5f_5f1"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, lock.ScopeKey(test.name))
		})
	}
}

func TestScopeKeyDistinctNames(t *testing.T) {
	names := []string{"a::b", "a__b", "a_b", "a:_b", "a_3ab", "a/b", "", "_", "default"}
	keys := map[string]string{}
	for _, n := range names {
		k := lock.ScopeKey(n)
		prev, ok := keys[k]
		assert.False(t, ok, "%q and %q share the key %q", prev, n, k)
		keys[k] = n
	}
}

func TestWithLock(t *testing.T) {
	tests := map[string]struct {
		mock   func(lk *lockmock.MockLocker, l *lockmock.MockLock)
		fnErr  error
		expRun bool
		expErr error
	}{
		"A successful run releases the lock": {
			mock: func(lk *lockmock.MockLocker, l *lockmock.MockLock) {
				lk.On("Acquire", mock.Anything, "batch").Once().Return(l, nil)
				l.On("Release").Once().Return(nil)
			},
			expRun: true,
		},
		"A failed run releases the lock and returns the error": {
			mock: func(lk *lockmock.MockLocker, l *lockmock.MockLock) {
				lk.On("Acquire", mock.Anything, "batch").Once().Return(l, nil)
				l.On("Release").Once().Return(nil)
			},
			fnErr:  errors.New("whatever"),
			expRun: true,
			expErr: errors.New("whatever"),
		},
		"An active lock doesn't run the function": {
			mock: func(lk *lockmock.MockLocker, l *lockmock.MockLock) {
				lk.On("Acquire", mock.Anything, "batch").Once().Return(nil, model.ErrLockActive)
			},
			expErr: model.ErrLockActive,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			lk := &lockmock.MockLocker{}
			l := &lockmock.MockLock{}
			test.mock(lk, l)

			ran := false
			err := lock.WithLock(context.Background(), lk, "batch", log.Noop, func(ctx context.Context) error {
				ran = true
				return test.fnErr
			})

			assert.Equal(t, test.expRun, ran)
			if test.expErr != nil {
				require.Error(t, err)
				if errors.Is(test.expErr, model.ErrLockActive) {
					assert.ErrorIs(t, err, model.ErrLockActive)
				} else {
					assert.Contains(t, err.Error(), test.expErr.Error())
				}
			} else {
				assert.NoError(t, err)
			}

			lk.AssertExpectations(t)
			l.AssertExpectations(t)
		})
	}
}
