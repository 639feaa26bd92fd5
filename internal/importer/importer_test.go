package importer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/importer"
	lockfile "github.com/slok/bosync/internal/lock/file"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/remote/remotemock"
	"github.com/slok/bosync/internal/task/syncctx"
)

// fakeSource is a remote collection of total items with ids 1..total.
type fakeSource struct {
	total  int
	calls  int
	limits []int
}

func (f *fakeSource) Call(ctx context.Context, module, function string, q remote.Query) (*remote.Page, error) {
	f.calls++
	f.limits = append(f.limits, q.Limit)

	page := &remote.Page{Count: int64(f.total), Data: []model.Record{}}
	for i := q.Start; i < q.Start+q.Limit && i < f.total; i++ {
		page.Data = append(page.Data, model.Record{"id": i + 1})
	}
	return page, nil
}

func newImporter(t *testing.T, caller remote.Caller) *importer.Importer {
	t.Helper()
	locker, err := lockfile.NewLocker(lockfile.LockerConfig{Dirs: []string{t.TempDir()}})
	require.NoError(t, err)
	imp, err := importer.NewImporter(importer.ImporterConfig{Caller: caller, Locker: locker})
	require.NoError(t, err)
	return imp
}

func TestImporterPaginationTermination(t *testing.T) {
	const limit = 7

	tests := map[string]struct {
		total int
	}{
		"Empty source":               {total: 0},
		"Single item":                {total: 1},
		"Exactly one page":           {total: limit},
		"One page and one item":      {total: limit + 1},
		"Many pages with short tail": {total: 10*limit - 3},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{total: test.total}
			imp := newImporter(t, src)

			seen := map[string]int{}
			res, err := imp.Run(context.Background(), importer.Options{
				Name:     "import-products",
				Module:   "ShopModule",
				Function: "listProducts",
				PageSize: limit,
				Process: func(ctx context.Context, item model.Record) error {
					seen[fmt.Sprint(item["id"])]++
					return nil
				},
			})
			require.NoError(t, err)

			expPages := (test.total + limit - 1) / limit
			assert.Equal(t, model.OutcomeRan, res.Outcome.Kind)
			assert.Equal(t, expPages, res.Pages)
			assert.Equal(t, max(expPages, 1), src.calls)
			assert.Equal(t, test.total, res.Processed)
			assert.Equal(t, test.total, res.Fetched)

			// Every item exactly once.
			assert.Len(t, seen, test.total)
			for id, n := range seen {
				assert.Equal(t, 1, n, "item %s", id)
			}
		})
	}
}

func TestImporterShortPageWithoutCount(t *testing.T) {
	// A remote that doesn't report the count stops on the short page.
	m := &remotemock.MockClient{}
	full := &remote.Page{Data: []model.Record{{"id": 1}, {"id": 2}}}
	short := &remote.Page{Data: []model.Record{{"id": 3}}}
	m.On("Call", mock.Anything, "m", "f", mock.MatchedBy(func(q remote.Query) bool { return q.Start == 0 })).Once().Return(full, nil)
	m.On("Call", mock.Anything, "m", "f", mock.MatchedBy(func(q remote.Query) bool { return q.Start == 2 })).Once().Return(short, nil)

	imp := newImporter(t, m)
	res, err := imp.Run(context.Background(), importer.Options{
		Name: "x", Module: "m", Function: "f", PageSize: 2,
		Process: func(ctx context.Context, item model.Record) error { return nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, res.ProcessedIDs)
	m.AssertExpectations(t)
}

func TestImporterFetchMax(t *testing.T) {
	src := &fakeSource{total: 100}
	imp := newImporter(t, src)

	res, err := imp.Run(context.Background(), importer.Options{
		Name: "x", Module: "m", Function: "f", PageSize: 10, FetchMax: 25,
		Process: func(ctx context.Context, item model.Record) error { return nil },
	})
	require.NoError(t, err)

	assert.Equal(t, 25, res.Processed)
	assert.Equal(t, []int{10, 10, 5}, src.limits)
}

func TestImporterPageIsolation(t *testing.T) {
	const (
		count = 10
		k     = 4
	)

	tests := map[string]struct {
		itemErr      error
		failFast     bool
		expErr       bool
		expProcessed int
		expFailed    int
		expApplied   []string
		expSkipped   []string
		expSeen      []string
		expAfterRun  bool
	}{
		"An invalid item is skipped and counted": {
			itemErr:      fmt.Errorf("bad sku: %w", model.ErrItemNotValid),
			expProcessed: count - 1,
			expFailed:    1,
			expApplied:   []string{"1", "2", "3", "4", "6", "7", "8", "9", "10"},
			expSkipped:   []string{"5"},
			expSeen:      []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"},
			expAfterRun:  true,
		},
		"An invalid item aborts with fail fast": {
			itemErr:      fmt.Errorf("bad sku: %w", model.ErrItemNotValid),
			failFast:     true,
			expErr:       true,
			expProcessed: k,
			expFailed:    1,
			expApplied:   []string{"1", "2", "3", "4"},
			expSkipped:   []string{"5"},
		},
		"An unexpected error aborts right away": {
			itemErr:      errors.New("database is gone"),
			expErr:       true,
			expProcessed: k,
			expApplied:   []string{"1", "2", "3", "4"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{total: count}
			imp := newImporter(t, src)

			var applied []string
			afterRun := false
			res, err := imp.Run(context.Background(), importer.Options{
				Name: "x", Module: "m", Function: "f", PageSize: 100, FailFast: test.failFast,
				Process: func(ctx context.Context, item model.Record) error {
					id := fmt.Sprint(item["id"])
					if id == strconv.Itoa(k+1) {
						return test.itemErr
					}
					applied = append(applied, id)
					return nil
				},
				AfterRun: func(ctx context.Context, ids []string) error {
					afterRun = true
					assert.Equal(t, test.expSeen, ids)
					return nil
				},
			})

			if test.expErr {
				require.Error(t, err)
				assert.Equal(t, model.OutcomeFailed, res.Outcome.Kind)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, test.expProcessed, res.Processed)
			assert.Equal(t, test.expFailed, res.Failed)
			assert.Equal(t, test.expApplied, applied)
			assert.Equal(t, test.expSkipped, res.SkippedIDs)
			assert.Equal(t, test.expAfterRun, afterRun)
		})
	}
}

func TestImporterMarksApplyingIDs(t *testing.T) {
	src := &fakeSource{total: 2}
	imp := newImporter(t, src)

	ctx, applying := syncctx.NewContext(context.Background())
	_, err := imp.Run(ctx, importer.Options{
		Name: "x", Module: "m", Function: "f", RecordKind: "product",
		Process: func(ctx context.Context, item model.Record) error {
			assert.True(t, syncctx.IsApplying(ctx, "product", fmt.Sprint(item["id"])))
			return nil
		},
	})
	require.NoError(t, err)
	assert.False(t, applying.Has("product", "1"))
}

func TestImporterSkipsWhenLocked(t *testing.T) {
	dir := t.TempDir()
	locker, err := lockfile.NewLocker(lockfile.LockerConfig{Dirs: []string{dir}})
	require.NoError(t, err)
	held, err := locker.Acquire(context.Background(), "import-products")
	require.NoError(t, err)
	defer held.Release()

	src := &fakeSource{total: 3}
	imp, err := importer.NewImporter(importer.ImporterConfig{Caller: src, Locker: locker})
	require.NoError(t, err)

	res, err := imp.Run(context.Background(), importer.Options{
		Name: "import-products", Module: "m", Function: "f",
		Process: func(ctx context.Context, item model.Record) error { return nil },
	})
	assert.ErrorIs(t, err, model.ErrLockActive)
	assert.Equal(t, model.OutcomeSkipped, res.Outcome.Kind)
	assert.Equal(t, 0, src.calls)
}

func TestImporterFetchErrorAborts(t *testing.T) {
	m := &remotemock.MockClient{}
	m.On("Call", mock.Anything, "m", "f", mock.Anything).Once().Return(nil, fmt.Errorf("x: %w", model.ErrConnectivityTimeout))

	imp := newImporter(t, m)
	_, err := imp.Run(context.Background(), importer.Options{
		Name: "x", Module: "m", Function: "f",
		Process: func(ctx context.Context, item model.Record) error { return nil },
	})
	assert.ErrorIs(t, err, model.ErrConnectivityTimeout)
}

func TestTerminalProgress(t *testing.T) {
	var b bytes.Buffer
	p := importer.NewTerminalProgress(&b)

	p.StartPage(1, 2)
	p.Increment()
	p.Increment()
	p.FinishPage()

	out := b.String()
	assert.Contains(t, out, "page 1")
	assert.Contains(t, out, "100% 2/2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}
