package io

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/model"
)

func TestConfigRepository_GetConfig(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expCfg func() model.Config
		expErr bool
		errMsg string
	}{
		"Empty config should load the defaults": {
			fs: fstest.MapFS{
				"bosync.yaml": &fstest.MapFile{
					Data: []byte(`---
`),
				},
			},
			path:   "bosync.yaml",
			expCfg: model.DefaultConfig,
		},
		"YAML config should override the defaults": {
			fs: fstest.MapFS{
				"bosync.yaml": &fstest.MapFile{
					Data: []byte(`remote:
  base_url: https://backoffice.example.com/api
  timeout: 5s
queue:
  order_types: [export-order]
  timeout_retry_budget: 0
lock:
  backend: redis
  dsn: localhost:6379
  wait: 1m
runner:
  isolated: false
  timeout: 30m
import:
  fetch_max: 500
  lang: en
cron:
  schedule: "@every 1m"
`),
				},
			},
			path: "bosync.yaml",
			expCfg: func() model.Config {
				cfg := model.DefaultConfig()
				cfg.Remote.BaseURL = "https://backoffice.example.com/api"
				cfg.Remote.Timeout = 5 * time.Second
				cfg.Queue.OrderTypes = []model.TaskType{model.TaskTypeExportOrder}
				cfg.Queue.TimeoutRetryBudget = 0
				cfg.Lock.Backend = model.LockBackendRedis
				cfg.Lock.DSN = "localhost:6379"
				cfg.Lock.Wait = time.Minute
				cfg.Runner.Isolated = false
				cfg.Runner.Timeout = 30 * time.Minute
				cfg.Import.FetchMax = 500
				cfg.Import.Language = "en"
				cfg.Cron.Schedule = "@every 1m"
				return cfg
			},
		},
		"TOML config should override the defaults": {
			fs: fstest.MapFS{
				"bosync.toml": &fstest.MapFile{
					Data: []byte(`[queue]
page_size = 50
failure_flag_ttl = "1h"

[lock]
backend = "sqlite"
ttl = "30m"

[server]
listen_addr = ":9090"
`),
				},
			},
			path: "bosync.toml",
			expCfg: func() model.Config {
				cfg := model.DefaultConfig()
				cfg.Queue.PageSize = 50
				cfg.Queue.FailureFlagTTL = time.Hour
				cfg.Lock.Backend = model.LockBackendSQLite
				cfg.Lock.TTL = 30 * time.Minute
				cfg.Server.ListenAddr = ":9090"
				return cfg
			},
		},
		"Missing file should return error": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading config file",
		},
		"Invalid YAML should return error": {
			fs: fstest.MapFS{
				"invalid.yaml": &fstest.MapFile{
					Data: []byte(`invalid: yaml: content: {}`),
				},
			},
			path:   "invalid.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
		"Invalid TOML should return error": {
			fs: fstest.MapFS{
				"invalid.toml": &fstest.MapFile{
					Data: []byte(`[queue`),
				},
			},
			path:   "invalid.toml",
			expErr: true,
			errMsg: "parsing TOML",
		},
		"Invalid duration should return error": {
			fs: fstest.MapFS{
				"bosync.yaml": &fstest.MapFile{
					Data: []byte(`runner:
  timeout: soon
`),
				},
			},
			path:   "bosync.yaml",
			expErr: true,
			errMsg: "runner timeout",
		},
		"Unknown order type should return error": {
			fs: fstest.MapFS{
				"bosync.yaml": &fstest.MapFile{
					Data: []byte(`queue:
  order_types: [ship-order]
`),
				},
			},
			path:   "bosync.yaml",
			expErr: true,
			errMsg: "invalid order type",
		},
		"Network lock backend without DSN should return error": {
			fs: fstest.MapFS{
				"bosync.yaml": &fstest.MapFile{
					Data: []byte(`lock:
  backend: postgres
`),
				},
			},
			path:   "bosync.yaml",
			expErr: true,
			errMsg: "requires a DSN",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewConfigRepository(tc.fs)
			cfg, err := repo.GetConfig(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expCfg(), cfg)
		})
	}
}

func TestConfigRepository_GetConfig_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"bosync.yaml": &fstest.MapFile{
			Data: []byte(`cron:
  schedule: "@hourly"
`),
		},
	}

	repo := NewConfigRepository(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := repo.GetConfig(ctx, "bosync.yaml")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
