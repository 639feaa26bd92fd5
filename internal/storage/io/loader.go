package io

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/slok/bosync/internal/model"
)

// ConfigRepository loads the application configuration from YAML or TOML files.
type ConfigRepository struct {
	fs fs.FS
}

// NewConfigRepository creates a new config repository.
func NewConfigRepository(filesystem fs.FS) *ConfigRepository {
	return &ConfigRepository{fs: filesystem}
}

// GetConfig loads a configuration file on top of the default configuration and
// returns a validated domain model. Files ending in ".toml" are parsed as TOML,
// anything else as YAML.
func (r *ConfigRepository) GetConfig(ctx context.Context, path string) (model.Config, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.Config{}, ctx.Err()
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return model.Config{}, fmt.Errorf("parsing TOML: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return model.Config{}, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	mcfg, err := cfg.toModel()
	if err != nil {
		return model.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := mcfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return mcfg, nil
}

// Config represents the file structure of the configuration, unset fields
// keep the default values.
type Config struct {
	Remote RemoteConfig `yaml:"remote" toml:"remote"`
	Queue  QueueConfig  `yaml:"queue" toml:"queue"`
	Lock   LockConfig   `yaml:"lock" toml:"lock"`
	Runner RunnerConfig `yaml:"runner" toml:"runner"`
	Import ImportConfig `yaml:"import" toml:"import"`
	Cron   CronConfig   `yaml:"cron" toml:"cron"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

type RemoteConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	Timeout   string `yaml:"timeout" toml:"timeout"`
	RateLimit int    `yaml:"rate_limit" toml:"rate_limit"`
}

type QueueConfig struct {
	OrderTypes         []string `yaml:"order_types" toml:"order_types"`
	PageSize           int      `yaml:"page_size" toml:"page_size"`
	TimeoutRetryBudget *int     `yaml:"timeout_retry_budget" toml:"timeout_retry_budget"`
	FailureFlagTTL     string   `yaml:"failure_flag_ttl" toml:"failure_flag_ttl"`
}

type LockConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
	Dir     string `yaml:"dir" toml:"dir"`
	Wait    string `yaml:"wait" toml:"wait"`
	TTL     string `yaml:"ttl" toml:"ttl"`
	DSN     string `yaml:"dsn" toml:"dsn"`
}

type RunnerConfig struct {
	Isolated   *bool    `yaml:"isolated" toml:"isolated"`
	Timeout    string   `yaml:"timeout" toml:"timeout"`
	EchoOutput bool     `yaml:"echo_output" toml:"echo_output"`
	Env        []string `yaml:"env" toml:"env"`
}

type ImportConfig struct {
	PageSize int    `yaml:"page_size" toml:"page_size"`
	FetchMax int    `yaml:"fetch_max" toml:"fetch_max"`
	Language string `yaml:"lang" toml:"lang"`
}

type CronConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`
}

func (c Config) toModel() (model.Config, error) {
	cfg := model.DefaultConfig()

	if c.Remote.BaseURL != "" {
		cfg.Remote.BaseURL = c.Remote.BaseURL
	}
	if c.Remote.APIKeyEnv != "" {
		cfg.Remote.APIKeyEnv = c.Remote.APIKeyEnv
	}
	if err := setDuration(&cfg.Remote.Timeout, c.Remote.Timeout); err != nil {
		return model.Config{}, fmt.Errorf("remote timeout: %w", err)
	}
	if c.Remote.RateLimit != 0 {
		cfg.Remote.RateLimit = c.Remote.RateLimit
	}

	if c.Queue.OrderTypes != nil {
		cfg.Queue.OrderTypes = make([]model.TaskType, 0, len(c.Queue.OrderTypes))
		for _, t := range c.Queue.OrderTypes {
			cfg.Queue.OrderTypes = append(cfg.Queue.OrderTypes, model.TaskType(t))
		}
	}
	if c.Queue.PageSize != 0 {
		cfg.Queue.PageSize = c.Queue.PageSize
	}
	if c.Queue.TimeoutRetryBudget != nil {
		cfg.Queue.TimeoutRetryBudget = *c.Queue.TimeoutRetryBudget
	}
	if err := setDuration(&cfg.Queue.FailureFlagTTL, c.Queue.FailureFlagTTL); err != nil {
		return model.Config{}, fmt.Errorf("queue failure flag ttl: %w", err)
	}

	if c.Lock.Backend != "" {
		cfg.Lock.Backend = model.LockBackend(c.Lock.Backend)
	}
	if c.Lock.Dir != "" {
		cfg.Lock.Dir = c.Lock.Dir
	}
	if c.Lock.DSN != "" {
		cfg.Lock.DSN = c.Lock.DSN
	}
	if err := setDuration(&cfg.Lock.Wait, c.Lock.Wait); err != nil {
		return model.Config{}, fmt.Errorf("lock wait: %w", err)
	}
	if err := setDuration(&cfg.Lock.TTL, c.Lock.TTL); err != nil {
		return model.Config{}, fmt.Errorf("lock ttl: %w", err)
	}

	if c.Runner.Isolated != nil {
		cfg.Runner.Isolated = *c.Runner.Isolated
	}
	if err := setDuration(&cfg.Runner.Timeout, c.Runner.Timeout); err != nil {
		return model.Config{}, fmt.Errorf("runner timeout: %w", err)
	}
	cfg.Runner.EchoOutput = c.Runner.EchoOutput
	cfg.Runner.Env = c.Runner.Env

	if c.Import.PageSize != 0 {
		cfg.Import.PageSize = c.Import.PageSize
	}
	if c.Import.FetchMax != 0 {
		cfg.Import.FetchMax = c.Import.FetchMax
	}
	if c.Import.Language != "" {
		cfg.Import.Language = c.Import.Language
	}

	if c.Cron.Schedule != "" {
		cfg.Cron.Schedule = c.Cron.Schedule
	}
	if c.Server.ListenAddr != "" {
		cfg.Server.ListenAddr = c.Server.ListenAddr
	}

	return cfg, nil
}

func setDuration(dst *time.Duration, s string) error {
	if s == "" {
		return nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("duration can't be negative")
	}
	*dst = d

	return nil
}
