package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/model"
)

func TestParseMetaSpecs(t *testing.T) {
	tests := map[string]struct {
		specs   []string
		expMeta model.MetaData
		expErr  bool
	}{
		"No specs should return no meta": {
			specs:   nil,
			expMeta: nil,
		},
		"KEY=VALUE should parse as string": {
			specs:   []string{"query=red shoes"},
			expMeta: model.MetaData{"query": "red shoes"},
		},
		"JSON values should be decoded": {
			specs:   []string{"limit=10", "fail_fast=true", "ids=[1,2]"},
			expMeta: model.MetaData{"limit": float64(10), "fail_fast": true, "ids": []any{float64(1), float64(2)}},
		},
		"Empty value should be an empty string": {
			specs:   []string{"lang="},
			expMeta: model.MetaData{"lang": ""},
		},
		"Later entries should override earlier ones": {
			specs:   []string{"limit=1", "limit=2"},
			expMeta: model.MetaData{"limit": float64(2)},
		},
		"Missing value should fail": {
			specs:  []string{"limit"},
			expErr: true,
		},
		"Missing key should fail": {
			specs:  []string{"=1"},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			meta, err := parseMetaSpecs(tc.specs)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expMeta, meta)
		})
	}
}
