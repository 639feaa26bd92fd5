package model_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/bosync/internal/model"
)

func TestErrorKind(t *testing.T) {
	tests := map[string]struct {
		err     error
		expKind string
	}{
		"A nil error should not have kind.": {
			err:     nil,
			expKind: "",
		},
		"A generic error should be a generic kind.": {
			err:     fmt.Errorf("something"),
			expKind: model.ErrorKindGeneric,
		},
		"A wrapped lock active error should be a lock active kind.": {
			err:     fmt.Errorf("could not acquire: %w", model.ErrLockActive),
			expKind: model.ErrorKindLockActive,
		},
		"A rescheduled timeout should be a rescheduled kind.": {
			err:     fmt.Errorf("task rescheduled: %w: %w", model.ErrTaskRescheduled, model.ErrConnectivityTimeout),
			expKind: model.ErrorKindTaskRescheduled,
		},
		"A timeout should be a connectivity timeout kind.": {
			err:     fmt.Errorf("call: %w", model.ErrConnectivityTimeout),
			expKind: model.ErrorKindConnectivityTimeout,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expKind, model.ErrorKind(test.err))
		})
	}
}

func TestErrorFromKindRoundTrip(t *testing.T) {
	for _, err := range []error{
		model.ErrLockActive,
		model.ErrLockTimeout,
		model.ErrConnectivityTimeout,
		model.ErrTaskRescheduled,
		model.ErrUnknownTaskType,
		model.ErrItemNotValid,
	} {
		assert.Equal(t, err, model.ErrorFromKind(model.ErrorKind(err)))
	}
	assert.Nil(t, model.ErrorFromKind(model.ErrorKindGeneric))
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]struct {
		config func() model.Config
		expErr bool
	}{
		"Default config should be valid.": {
			config: model.DefaultConfig,
		},
		"Unknown order types should fail.": {
			config: func() model.Config {
				c := model.DefaultConfig()
				c.Queue.OrderTypes = []model.TaskType{"nope"}
				return c
			},
			expErr: true,
		},
		"Non positive queue page size should fail.": {
			config: func() model.Config {
				c := model.DefaultConfig()
				c.Queue.PageSize = 0
				return c
			},
			expErr: true,
		},
		"Postgres backend without DSN should fail.": {
			config: func() model.Config {
				c := model.DefaultConfig()
				c.Lock.Backend = model.LockBackendPostgres
				return c
			},
			expErr: true,
		},
		"Unknown lock backend should fail.": {
			config: func() model.Config {
				c := model.DefaultConfig()
				c.Lock.Backend = "etcd"
				return c
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.config().Validate()
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
