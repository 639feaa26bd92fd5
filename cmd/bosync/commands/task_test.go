package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/model"
)

func TestTaskFilterFlags(t *testing.T) {
	target := int64(7)

	tests := map[string]struct {
		flags     taskFilterFlags
		expEmpty  bool
		expFilter model.TaskFilter
		expErr    bool
	}{
		"No flags should select everything": {
			flags:     taskFilterFlags{target: -1},
			expEmpty:  true,
			expFilter: model.TaskFilter{},
		},
		"Every flag should map to the filter": {
			flags: taskFilterFlags{
				ids:      []int64{1, 2},
				statuses: []string{"FAILED", "new"},
				types:    []string{"import-order"},
				groups:   []string{"import"},
				target:   7,
				limit:    10,
			},
			expFilter: model.TaskFilter{
				IDs:        []int64{1, 2},
				Statuses:   []model.TaskStatus{model.TaskStatusFailed, model.TaskStatusNew},
				Types:      []model.TaskType{model.TaskTypeImportOrder},
				TypeGroups: []string{"import"},
				TargetID:   &target,
				Limit:      10,
			},
		},
		"Target zero should filter the collection tasks": {
			flags: taskFilterFlags{target: 0},
			expFilter: model.TaskFilter{
				TargetID: func() *int64 { v := int64(0); return &v }(),
			},
		},
		"Invalid status should fail": {
			flags:  taskFilterFlags{statuses: []string{"done"}, target: -1},
			expErr: true,
		},
		"Invalid type should fail": {
			flags:  taskFilterFlags{types: []string{"import-everything"}, target: -1},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expEmpty, tc.flags.empty())

			f, err := tc.flags.filter()
			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expFilter, f)
		})
	}
}
