package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/lock"
	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/task/syncctx"
)

// DefaultPageSize is the page size used when none is set.
const DefaultPageSize = 100

// ProcessFunc applies one remote item to the local store. Returning an error
// wrapping model.ErrItemNotValid skips the item, any other error aborts the run.
type ProcessFunc func(ctx context.Context, item model.Record) error

// AfterRunFunc reconciles the state that depends on the complete result set.
// seenIDs are the ids of every item present upstream, processed or skipped as
// invalid, in fetch order.
type AfterRunFunc func(ctx context.Context, seenIDs []string) error

// Options are the options of an import run.
type Options struct {
	// Name is the job class, used as the lock scope.
	Name     string
	Module   string
	Function string
	Query    string
	Language string
	Sorts    []model.Sort
	Filters  []model.Filter
	PageSize int
	// FetchMax is the maximum number of fetched items, 0 is unlimited.
	FetchMax int
	// FailFast aborts on the first invalid item.
	FailFast bool
	// RecordKind marks the ids being applied on the run context.
	RecordKind string
	// IDField is the item field with the remote ID, defaults to "id".
	IDField  string
	Process  ProcessFunc
	AfterRun AfterRunFunc
}

func (o *Options) defaults() error {
	if o.Name == "" {
		return fmt.Errorf("name is required: %w", model.ErrNotValid)
	}
	if o.Module == "" || o.Function == "" {
		return fmt.Errorf("module and function are required: %w", model.ErrNotValid)
	}
	if o.Process == nil {
		return fmt.Errorf("process function is required: %w", model.ErrNotValid)
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.FetchMax < 0 {
		return fmt.Errorf("fetch max can't be negative: %w", model.ErrNotValid)
	}
	if o.IDField == "" {
		o.IDField = "id"
	}
	if o.RecordKind == "" {
		o.RecordKind = o.Name
	}
	return nil
}

// Result is the result of an import run.
type Result struct {
	Outcome model.Outcome
	// Pages is the number of non empty pages processed.
	Pages int
	// Fetches is the number of remote calls.
	Fetches      int
	Fetched      int
	Processed    int
	Failed       int
	ProcessedIDs []string
	// SkippedIDs are the ids of the items skipped as invalid.
	SkippedIDs []string
	Duration     time.Duration
}

// ImporterConfig is the configuration for the importer.
type ImporterConfig struct {
	Caller   remote.Caller
	Locker   lock.Locker
	Progress ProgressReporter
	Logger   log.Logger
}

func (c *ImporterConfig) defaults() error {
	if c.Caller == nil {
		return fmt.Errorf("remote caller is required")
	}
	if c.Locker == nil {
		return fmt.Errorf("locker is required")
	}
	if c.Progress == nil {
		c.Progress = NoopProgress
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "importer.Importer"})
	return nil
}

// Importer pages through a remote collection applying every item locally.
type Importer struct {
	caller   remote.Caller
	locker   lock.Locker
	progress ProgressReporter
	logger   log.Logger
}

// NewImporter returns a new importer.
func NewImporter(cfg ImporterConfig) (*Importer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Importer{
		caller:   cfg.Caller,
		locker:   cfg.Locker,
		progress: cfg.Progress,
		logger:   cfg.Logger,
	}, nil
}

// Run holds the job class lock and fetches pages until the source is
// exhausted or FetchMax is reached.
//
// When the lock is held by another run the outcome is skipped and the lock
// error is returned so callers can stop their own work.
func (i *Importer) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.defaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	res := &Result{}
	start := time.Now()
	err := lock.WithLock(ctx, i.locker, opts.Name, i.logger, func(ctx context.Context) error {
		return i.run(ctx, opts, res)
	})
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Outcome = model.Ran()
	case model.IsLockError(err):
		res.Outcome = model.Skipped(err.Error())
	default:
		res.Outcome = model.Failed(err)
	}

	return res, err
}

func (i *Importer) run(ctx context.Context, opts Options, res *Result) error {
	logger := i.logger.WithValues(log.Kv{"import": opts.Name})

	ctx, applying := withApplying(ctx)

	var seen []string
	cur := cursor{limit: opts.PageSize, max: opts.FetchMax}
	for !cur.done {
		limit := cur.nextLimit()
		page, err := i.caller.Call(ctx, opts.Module, opts.Function, remote.Query{
			Query:    opts.Query,
			Language: opts.Language,
			Start:    cur.start,
			Limit:    limit,
			Sorts:    opts.Sorts,
			Filters:  opts.Filters,
		})
		if err != nil {
			return fmt.Errorf("could not fetch page at %d: %w", cur.start, err)
		}
		res.Fetches++

		n := len(page.Data)
		if n > 0 {
			res.Pages++
		}
		logger.Debugf("Fetched %d items at %d (remote count %d)", n, cur.start, page.Count)

		i.progress.StartPage(res.Fetches, n)
		for _, item := range page.Data {
			id := itemID(item, opts.IDField)
			applying.Add(opts.RecordKind, id)
			err := opts.Process(ctx, item)
			applying.Remove(opts.RecordKind, id)
			i.progress.Increment()

			if err != nil {
				if !errors.Is(err, model.ErrItemNotValid) {
					i.progress.FinishPage()
					return fmt.Errorf("could not process item %s: %w", id, err)
				}

				res.Failed++
				if id != "" {
					res.SkippedIDs = append(res.SkippedIDs, id)
					seen = append(seen, id)
				}
				logger.Warningf("Skipping invalid item %s: %s", id, err)
				if opts.FailFast {
					i.progress.FinishPage()
					return fmt.Errorf("invalid item %s with fail fast: %w", id, err)
				}
				continue
			}

			res.Processed++
			res.ProcessedIDs = append(res.ProcessedIDs, id)
			seen = append(seen, id)
		}
		i.progress.FinishPage()

		res.Fetched += n
		cur.advance(n, limit, page.Count)
	}

	if opts.AfterRun != nil {
		if err := opts.AfterRun(ctx, seen); err != nil {
			return fmt.Errorf("after run failed: %w", err)
		}
	}

	logger.Infof("Import finished: %d processed, %d failed in %d pages", res.Processed, res.Failed, res.Pages)

	return nil
}

// withApplying reuses the applying set of the run context or creates one.
func withApplying(ctx context.Context) (context.Context, *syncctx.Applying) {
	if a := syncctx.FromContext(ctx); a != nil {
		return ctx, a
	}
	return syncctx.NewContext(ctx)
}

func itemID(item model.Record, field string) string {
	v, ok := item[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// cursor is the pagination state of a run.
type cursor struct {
	start   int
	limit   int
	max     int
	fetched int
	done    bool
}

// nextLimit is the page size of the next fetch, smaller than the page size
// when the fetch max is close.
func (c *cursor) nextLimit() int {
	if c.max > 0 && c.max-c.fetched < c.limit {
		return c.max - c.fetched
	}
	return c.limit
}

func (c *cursor) advance(n, limit int, remoteCount int64) {
	c.start += n
	c.fetched += n

	switch {
	// Short page, the source is exhausted.
	case n < limit:
		c.done = true
	case remoteCount > 0 && int64(c.start) >= remoteCount:
		c.done = true
	case c.max > 0 && c.fetched >= c.max:
		c.done = true
	}
}
