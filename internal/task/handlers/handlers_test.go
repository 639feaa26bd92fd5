package handlers_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/bosync/internal/app/schedule"
	"github.com/slok/bosync/internal/conventions"
	"github.com/slok/bosync/internal/importer"
	"github.com/slok/bosync/internal/lock/file"
	"github.com/slok/bosync/internal/model"
	"github.com/slok/bosync/internal/remote"
	"github.com/slok/bosync/internal/remote/remotemock"
	"github.com/slok/bosync/internal/storage/memory"
	"github.com/slok/bosync/internal/task"
	"github.com/slok/bosync/internal/task/handlers"
	"github.com/slok/bosync/internal/task/syncctx"
)

// fakeRemote serves a fixed collection per module.
type fakeRemote struct {
	data  map[string][]model.Record
	calls []remote.Query
}

func (f *fakeRemote) Call(ctx context.Context, module, function string, q remote.Query) (*remote.Page, error) {
	f.calls = append(f.calls, q)

	items := f.data[module]
	for _, flt := range q.Filters {
		var filtered []model.Record
		for _, it := range items {
			if flt.Name == "id" && it["id"] == flt.Val {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	page := &remote.Page{Count: int64(len(items))}
	if q.Start < len(items) {
		page.Data = items[q.Start:min(q.Start+q.Limit, len(items))]
	}
	return page, nil
}

func newImporter(t *testing.T, r remote.Caller) *importer.Importer {
	t.Helper()
	l, err := file.NewLocker(file.LockerConfig{Dirs: []string{t.TempDir()}, Holder: "test"})
	require.NoError(t, err)
	imp, err := importer.NewImporter(importer.ImporterConfig{Caller: r, Locker: l})
	require.NoError(t, err)
	return imp
}

func products(ids ...int64) []model.Record {
	var recs []model.Record
	for _, id := range ids {
		recs = append(recs, model.Record{"id": id, "name": "p"})
	}
	return recs
}

func TestEntityImport(t *testing.T) {
	tests := map[string]struct {
		meta           model.MetaData
		remote         []model.Record
		expActive      []string
		expImported    int
		expInvalid     int
		expDeactivated bool
	}{
		"A full import deactivates the records missing upstream": {
			remote:         products(1, 2, 3),
			expActive:      []string{"1", "2", "3"},
			expImported:    3,
			expDeactivated: true,
		},
		"A limited import doesn't deactivate anything": {
			meta:        model.MetaData{"limit": 2},
			remote:      products(1, 2, 3),
			expActive:   []string{"1", "2", "99"},
			expImported: 2,
		},
		"Items without id are skipped": {
			remote:         append(products(1), model.Record{"name": "no id"}, products(2)[0]),
			expActive:      []string{"1", "2"},
			expImported:    2,
			expInvalid:     1,
			expDeactivated: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(t, err)
			require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{Kind: handlers.KindProducts, ExternalID: "99", Active: true}))

			src := &fakeRemote{data: map[string][]model.Record{"product": test.remote}}
			h, err := handlers.NewEntityImport(model.TaskTypeImportProducts, handlers.ImportConfig{
				Importer: newImporter(t, src),
				Records:  repo,
				Defaults: handlers.ImportDefaults{PageSize: 2},
			})
			require.NoError(t, err)

			tk := &model.Task{Name: "import-products::0", Type: model.TaskTypeImportProducts, MetaData: test.meta}
			err = h.Run(ctx, tk)
			require.NoError(t, err)

			active, err := repo.ListRecordIDs(ctx, handlers.KindProducts, true)
			require.NoError(t, err)
			assert.Equal(t, test.expActive, active)
			assert.Equal(t, test.expImported, tk.MetaData["imported"])
			assert.Equal(t, test.expInvalid, tk.MetaData["invalid"])

			all, err := repo.ListRecordIDs(ctx, handlers.KindProducts, false)
			require.NoError(t, err)
			assert.Contains(t, all, "99")
			if test.expDeactivated {
				assert.NotContains(t, active, "99")
			}
			for _, q := range src.calls {
				assert.Equal(t, []model.Sort{{Name: "id", Dir: model.SortAsc}}, q.Sorts)
			}
		})
	}
}

// rejectingRecords refuses to store some records as invalid.
type rejectingRecords struct {
	*memory.Repository
	reject string
}

func (r rejectingRecords) UpsertRecord(ctx context.Context, rec model.LocalRecord) error {
	if rec.ExternalID == r.reject {
		return fmt.Errorf("record %s: %w", rec.ExternalID, model.ErrItemNotValid)
	}
	return r.Repository.UpsertRecord(ctx, rec)
}

func TestEntityImportKeepsInvalidUpstreamRecordsActive(t *testing.T) {
	ctx := context.Background()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{Kind: handlers.KindProducts, ExternalID: "2", Active: true}))
	require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{Kind: handlers.KindProducts, ExternalID: "99", Active: true}))

	src := &fakeRemote{data: map[string][]model.Record{"product": products(1, 2, 3)}}
	h, err := handlers.NewEntityImport(model.TaskTypeImportProducts, handlers.ImportConfig{
		Importer: newImporter(t, src),
		Records:  rejectingRecords{Repository: repo, reject: "2"},
		Defaults: handlers.ImportDefaults{PageSize: 2},
	})
	require.NoError(t, err)

	tk := &model.Task{Name: "import-products::0", Type: model.TaskTypeImportProducts}
	require.NoError(t, h.Run(ctx, tk))

	// The rejected item is still upstream so its local copy is kept active.
	active, err := repo.ListRecordIDs(ctx, handlers.KindProducts, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, active)
	assert.Equal(t, 1, tk.MetaData["invalid"])
}

func TestEntityImportInvalidMeta(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	h, err := handlers.NewEntityImport(model.TaskTypeImportCustomers, handlers.ImportConfig{
		Importer: newImporter(t, &fakeRemote{}),
		Records:  repo,
	})
	require.NoError(t, err)

	err = h.Run(context.Background(), &model.Task{Type: model.TaskTypeImportCustomers, MetaData: model.MetaData{"limit": -1}})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestEntityImportDirect(t *testing.T) {
	ctx := context.Background()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{Kind: handlers.KindCategories, ExternalID: "99", Active: true}))

	src := &fakeRemote{data: map[string][]model.Record{"category": products(1, 2, 3)}}
	h, err := handlers.NewEntityImport(model.TaskTypeImportCategories, handlers.ImportConfig{
		Importer: newImporter(t, src),
		Records:  repo,
		Defaults: handlers.ImportDefaults{PageSize: 10},
	})
	require.NoError(t, err)

	res, err := h.Import(ctx, task.ImportMeta{Query: "p", PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRan, res.Outcome.Kind)
	assert.Equal(t, 3, res.Processed)
	assert.Len(t, src.calls, 2)

	// A query import is partial, nothing is deactivated.
	active, err := repo.ListRecordIDs(ctx, handlers.KindCategories, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "99"}, active)
}

func TestNewEntityImportUnknownEntity(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	_, err = handlers.NewEntityImport(model.TaskTypeReportError, handlers.ImportConfig{
		Importer: newImporter(t, &fakeRemote{}),
		Records:  repo,
	})
	assert.ErrorIs(t, err, model.ErrUnknownTaskType)
}

func TestSingleImport(t *testing.T) {
	tests := map[string]struct {
		targetID  int64
		local     []string
		remote    []model.Record
		expErr    error
		expLocal  []string
		expFilter bool
	}{
		"The record is imported": {
			targetID:  2,
			remote:    products(1, 2, 3),
			expLocal:  []string{"2"},
			expFilter: true,
		},
		"A record gone upstream is deleted locally": {
			targetID:  5,
			local:     []string{"5", "6"},
			remote:    products(1),
			expLocal:  []string{"6"},
			expFilter: true,
		},
		"A record missing on both sides is fine": {
			targetID:  5,
			remote:    products(1),
			expFilter: true,
		},
		"A missing target is not valid": {
			targetID: 0,
			expErr:   model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(t, err)
			for _, id := range test.local {
				require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{Kind: handlers.KindProducts, ExternalID: id, Active: true}))
			}

			src := &fakeRemote{data: map[string][]model.Record{"product": test.remote}}
			h, err := handlers.NewSingleImport(model.TaskTypeImportProduct, handlers.ImportConfig{
				Importer: newImporter(t, src),
				Records:  repo,
			})
			require.NoError(t, err)

			tk := &model.Task{Name: task.Name(model.TaskTypeImportProduct, test.targetID), Type: model.TaskTypeImportProduct, TargetID: test.targetID}
			err = h.Run(ctx, tk)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				return
			}
			require.NoError(t, err)

			ids, err := repo.ListRecordIDs(ctx, handlers.KindProducts, false)
			require.NoError(t, err)
			assert.Equal(t, test.expLocal, ids)
			if test.expFilter {
				require.Len(t, src.calls, 1)
				assert.Equal(t, []model.Filter{{Name: "id", Val: test.targetID}}, src.calls[0].Filters)
				assert.Equal(t, 1, src.calls[0].Limit)
			}
		})
	}
}

func TestExportOrder(t *testing.T) {
	tests := map[string]struct {
		meta      model.MetaData
		mock      func(m *remotemock.MockClient)
		expErr    error
		expRemote string
	}{
		"The order is saved on the remote": {
			meta: model.MetaData{"order_id": "10"},
			mock: func(m *remotemock.MockClient) {
				m.On("Save", mock.Anything, "order", "save", map[string]any{"id": "10", "total": 5}).Once().Return(map[string]any{"id": 777}, nil)
			},
			expRemote: "777",
		},
		"The remote target can be overridden": {
			meta: model.MetaData{"order_id": "10", "module": "sales", "function": "push"},
			mock: func(m *remotemock.MockClient) {
				m.On("Save", mock.Anything, "sales", "push", mock.Anything).Once().Return(map[string]any{}, nil)
			},
		},
		"A missing local order fails": {
			meta:   model.MetaData{"order_id": "11"},
			mock:   func(m *remotemock.MockClient) {},
			expErr: model.ErrNotFound,
		},
		"A remote timeout is returned": {
			meta: model.MetaData{"order_id": "10"},
			mock: func(m *remotemock.MockClient) {
				m.On("Save", mock.Anything, "order", "save", mock.Anything).Once().Return(nil, model.ErrConnectivityTimeout)
			},
			expErr: model.ErrConnectivityTimeout,
		},
		"Missing order id is not valid": {
			meta:   model.MetaData{},
			mock:   func(m *remotemock.MockClient) {},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(t, err)
			require.NoError(t, repo.UpsertRecord(ctx, model.LocalRecord{
				Kind:       handlers.KindOrders,
				ExternalID: "10",
				Data:       model.Record{"id": "10", "total": 5},
				Active:     true,
			}))

			m := &remotemock.MockClient{}
			test.mock(m)

			h, err := handlers.NewExportOrder(handlers.ExportOrderConfig{Saver: m, Records: repo})
			require.NoError(t, err)

			tk := &model.Task{Type: model.TaskTypeExportOrder, MetaData: test.meta}
			err = h.Run(ctx, tk)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				require.NoError(t, err)
				if test.expRemote != "" {
					assert.Equal(t, test.expRemote, tk.MetaData["remote_id"])
				}
			}
			m.AssertExpectations(t)
		})
	}
}

func TestReportError(t *testing.T) {
	dataDir := t.TempDir()
	h, err := handlers.NewReportError(handlers.ReportErrorConfig{DataDir: dataDir})
	require.NoError(t, err)

	meta, err := task.EncodeMeta(task.ReportErrorMeta{
		FailedTaskID:   4,
		FailedTaskName: "import-order::8",
		ErrorKind:      model.ErrorKindGeneric,
		Bundle:         "task: import-order::8\nerror: boom",
	})
	require.NoError(t, err)

	// The same task failing twice keeps both reports.
	var paths []string
	for range 2 {
		tk := &model.Task{Type: model.TaskTypeReportError, TargetID: 4, MetaData: meta}
		require.NoError(t, h.Run(context.Background(), tk))

		path, ok := tk.MetaData["report_path"].(string)
		require.True(t, ok)
		paths = append(paths, path)

		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(got), "failed task id: 4")
		assert.Contains(t, string(got), "error: boom")
		assert.Equal(t, filepath.Join(dataDir, conventions.ReportsDir), filepath.Dir(path))
		assert.True(t, strings.HasPrefix(filepath.Base(path), "import-order__8."))
	}
	assert.NotEqual(t, paths[0], paths[1])

	entries, err := os.ReadDir(filepath.Join(dataDir, conventions.ReportsDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestReportErrorInvalidMeta(t *testing.T) {
	h, err := handlers.NewReportError(handlers.ReportErrorConfig{DataDir: t.TempDir()})
	require.NoError(t, err)

	err = h.Run(context.Background(), &model.Task{Type: model.TaskTypeReportError})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestExportingRecordRepository(t *testing.T) {
	tests := map[string]struct {
		kind      string
		applying  bool
		expExport bool
	}{
		"A local order change is exported": {
			kind:      handlers.KindOrders,
			expExport: true,
		},
		"An order applied by an import is not exported back": {
			kind:     handlers.KindOrders,
			applying: true,
		},
		"Other kinds are not exported": {
			kind: handlers.KindProducts,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(t, err)
			sched, err := schedule.NewService(schedule.ServiceConfig{Repository: repo})
			require.NoError(t, err)

			if test.applying {
				var a *syncctx.Applying
				ctx, a = syncctx.NewContext(ctx)
				a.Add(test.kind, "21")
			}

			records := handlers.NewExportingRecordRepository(repo, sched, nil)
			err = records.UpsertRecord(ctx, model.LocalRecord{Kind: test.kind, ExternalID: "21", Active: true})
			require.NoError(t, err)

			_, err = repo.GetRecord(ctx, test.kind, "21")
			require.NoError(t, err)

			tasks, err := repo.ListTasks(ctx, model.TaskFilter{Types: []model.TaskType{model.TaskTypeExportOrder}})
			require.NoError(t, err)
			if !test.expExport {
				assert.Empty(t, tasks)
				return
			}
			require.Len(t, tasks, 1)
			assert.Equal(t, "export-order::21", tasks[0].Name)
			assert.Equal(t, "21", tasks[0].MetaData["order_id"])
		})
	}
}

func TestRegister(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	r := task.NewRegistry()
	err = handlers.Register(r, handlers.Config{
		Importer: newImporter(t, &fakeRemote{}),
		Remote:   &remotemock.MockClient{},
		Records:  repo,
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, model.TaskTypes, r.Types())
	for _, tt := range model.TaskTypes {
		h, err := r.Handler(tt)
		require.NoError(t, err, tt)
		assert.NotNil(t, h)
	}

	// Registering twice fails.
	err = handlers.Register(r, handlers.Config{})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}
