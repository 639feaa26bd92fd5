package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slok/bosync/internal/app/batch"
	"github.com/slok/bosync/internal/log"
)

// Executor runs batches.
type Executor interface {
	Execute(ctx context.Context, req batch.Request) (*batch.Result, error)
}

// ServiceConfig is the configuration for the cron service.
type ServiceConfig struct {
	Executor Executor
	// Schedule is a standard cron expression or descriptor (e.g. "@every 5m").
	Schedule string
	Request  batch.Request
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if c.Schedule == "" {
		return fmt.Errorf("schedule is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Cron"})
	return nil
}

// Service triggers a batch run on every tick of its schedule.
type Service struct {
	cron     *cron.Cron
	executor Executor
	req      batch.Request
	logger   log.Logger
	runCtx   context.Context
}

// NewService creates a new cron service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		// Ticks that arrive while a batch is running are skipped.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		executor: cfg.Executor,
		req:      cfg.Request,
		logger:   cfg.Logger,
		runCtx:   context.Background(),
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid config: invalid schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Run runs the scheduler until the context is cancelled, waiting for the
// running batch to finish.
func (s *Service) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.cron.Start()
	s.logger.Infof("Cron started, next batch at %s", s.cron.Entries()[0].Next.Format(time.RFC3339))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Infof("Cron stopped")

	return nil
}

func (s *Service) tick() {
	res, err := s.executor.Execute(s.runCtx, s.req)
	if err != nil {
		s.logger.Errorf("Batch failed: %s", err)
		return
	}

	s.logger.Infof("Batch %s %s: %d processed, %d failed", res.RunID, res.Outcome.Kind, res.Processed, res.Failed)
}
