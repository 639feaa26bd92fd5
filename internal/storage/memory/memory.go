package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/slok/bosync/internal/log"
	"github.com/slok/bosync/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

type kvEntry struct {
	value     string
	expiresAt time.Time
}

// Repository is an in-memory implementation of the task, KV and record repositories.
type Repository struct {
	tasks      map[int64]model.Task
	lastID     int64
	kv         map[string]kvEntry
	records    map[string]map[string]model.LocalRecord
	aggregates map[string]model.RecordAggregate
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:      make(map[int64]model.Task),
		kv:         make(map[string]kvEntry),
		records:    make(map[string]map[string]model.LocalRecord),
		aggregates: make(map[string]model.RecordAggregate),
		logger:     cfg.Logger,
	}, nil
}

// CreateTask inserts a task and returns its ID.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	meta, err := copyMeta(t.MetaData)
	if err != nil {
		return 0, err
	}

	r.lastID++
	now := time.Now().UTC()
	t.ID = r.lastID
	t.MetaData = meta
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	r.tasks[t.ID] = t

	r.logger.Debugf("Created task %d: %s", t.ID, t.Name)
	return t.ID, nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	return cloneTask(t)
}

// UpdateTask updates all the mutable fields of a task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %d: %w", t.ID, model.ErrNotFound)
	}

	meta, err := copyMeta(t.MetaData)
	if err != nil {
		return err
	}

	stored.MetaData = meta
	stored.Status = t.Status
	stored.TimesRan = t.TimesRan
	stored.LastProcessedAt = t.LastProcessedAt
	stored.ExecutionDuration = t.ExecutionDuration
	stored.ErrorOutput = t.ErrorOutput
	stored.UpdatedAt = time.Now().UTC()
	r.tasks[t.ID] = stored

	return nil
}

// UpdateTaskStatus sets the status and the error output of a task.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errorOutput string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, model.ErrNotFound)
	}

	t.Status = status
	t.ErrorOutput = errorOutput
	t.UpdatedAt = time.Now().UTC()
	r.tasks[id] = t

	return nil
}

// ClaimTask atomically moves a task from new to processing.
func (r *Repository) ClaimTask(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.Status != model.TaskStatusNew {
		return false, nil
	}

	t.Status = model.TaskStatusProcessing
	t.UpdatedAt = time.Now().UTC()
	r.tasks[id] = t

	return true, nil
}

// ListPendingTaskIDs returns the ids of the new tasks, order types first.
func (r *Repository) ListPendingTaskIDs(ctx context.Context, q model.PendingQuery) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var orderTasks, restTasks []model.Task
	for _, t := range r.tasks {
		if t.Status != model.TaskStatusNew {
			continue
		}
		if q.TypeGroup != "" && t.TypeGroup != q.TypeGroup {
			continue
		}
		if slices.Contains(q.OrderTypes, t.Type) {
			orderTasks = append(orderTasks, t)
		} else {
			restTasks = append(restTasks, t)
		}
	}

	var ids []int64
	for _, part := range [][]model.Task{orderTasks, restTasks} {
		sort.Slice(part, func(i, j int) bool {
			if part[i].TimesRan != part[j].TimesRan {
				return part[i].TimesRan < part[j].TimesRan
			}
			return part[i].ID < part[j].ID
		})
		for i, t := range part {
			if i >= pageSize {
				break
			}
			ids = append(ids, t.ID)
		}
	}

	return ids, nil
}

// ListTasks returns the tasks matching the filter ordered by ID.
func (r *Repository) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := r.filter(f)
	if f.Limit > 0 && len(tasks) > f.Limit {
		tasks = tasks[:f.Limit]
	}

	res := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		c, err := cloneTask(t)
		if err != nil {
			return nil, err
		}
		res = append(res, *c)
	}

	return res, nil
}

// FindActiveTaskByName returns the latest non success task with the name.
func (r *Repository) FindActiveTaskByName(ctx context.Context, name string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *model.Task
	for _, t := range r.tasks {
		if t.Name != name || t.Status == model.TaskStatusSuccess {
			continue
		}
		if found == nil || t.ID > found.ID {
			t := t
			found = &t
		}
	}

	if found == nil {
		return nil, fmt.Errorf("active task %s: %w", name, model.ErrNotFound)
	}

	return cloneTask(*found)
}

// FindOrCreateTask reuses the latest non success task named like t, moving it
// back to new, or inserts t.
func (r *Repository) FindOrCreateTask(ctx context.Context, t model.Task) (*model.Task, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *model.Task
	for _, st := range r.tasks {
		if st.Name != t.Name || st.Status == model.TaskStatusSuccess {
			continue
		}
		if found == nil || st.ID > found.ID {
			st := st
			found = &st
		}
	}

	if found != nil {
		if found.Status != model.TaskStatusNew {
			found.Status = model.TaskStatusNew
			found.UpdatedAt = time.Now().UTC()
			r.tasks[found.ID] = *found
		}
		got, err := cloneTask(*found)
		return got, false, err
	}

	meta, err := copyMeta(t.MetaData)
	if err != nil {
		return nil, false, err
	}

	r.lastID++
	now := time.Now().UTC()
	t.ID = r.lastID
	t.MetaData = meta
	t.CreatedAt = now
	t.UpdatedAt = now
	r.tasks[t.ID] = t

	got, err := cloneTask(t)
	return got, true, err
}

// DeleteTasks deletes the tasks matching the filter.
func (r *Repository) DeleteTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tasks := r.filter(f)
	for _, t := range tasks {
		delete(r.tasks, t.ID)
	}

	return int64(len(tasks)), nil
}

// CountTasks counts the tasks matching the filter.
func (r *Repository) CountTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return int64(len(r.filter(f))), nil
}

// filter returns the tasks matching the filter sorted by ID, the lock must be held.
func (r *Repository) filter(f model.TaskFilter) []model.Task {
	var tasks []model.Task
	for _, t := range r.tasks {
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
			continue
		}
		if len(f.Names) > 0 && !slices.Contains(f.Names, t.Name) {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
			continue
		}
		if len(f.TypeGroups) > 0 && !slices.Contains(f.TypeGroups, t.TypeGroup) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
			continue
		}
		if f.TargetID != nil && *f.TargetID != t.TargetID {
			continue
		}
		tasks = append(tasks, t)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// SetValue stores a value, a ttl of 0 never expires.
func (r *Repository) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := kvEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	r.kv[key] = e

	return nil
}

// GetValue returns a non expired value.
func (r *Repository) GetValue(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.kv[key]
	if !ok || e.expired(time.Now()) {
		return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}

	return e.value, nil
}

// DeleteExpired removes the expired values.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var deleted int64
	for k, e := range r.kv {
		if e.expired(now) {
			delete(r.kv, k)
			deleted++
		}
	}

	return deleted, nil
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// UpsertRecord creates or updates a local record.
func (r *Repository) UpsertRecord(ctx context.Context, rec model.LocalRecord) error {
	if rec.Kind == "" || rec.ExternalID == "" {
		return fmt.Errorf("record kind and external id are required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.Kind]; !ok {
		r.records[rec.Kind] = make(map[string]model.LocalRecord)
	}
	rec.UpdatedAt = time.Now().UTC()
	r.records[rec.Kind][rec.ExternalID] = rec

	return nil
}

// GetRecord returns a local record by its external ID.
func (r *Repository) GetRecord(ctx context.Context, kind, externalID string) (*model.LocalRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[kind][externalID]
	if !ok {
		return nil, fmt.Errorf("record %s/%s: %w", kind, externalID, model.ErrNotFound)
	}

	return &rec, nil
}

// DeleteRecord deletes a local record.
func (r *Repository) DeleteRecord(ctx context.Context, kind, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[kind][externalID]; !ok {
		return fmt.Errorf("record %s/%s: %w", kind, externalID, model.ErrNotFound)
	}
	delete(r.records[kind], externalID)

	return nil
}

// ListRecordIDs returns the sorted external IDs of a record kind.
func (r *Repository) ListRecordIDs(ctx context.Context, kind string, activeOnly bool) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, rec := range r.records[kind] {
		if activeOnly && !rec.Active {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// DeactivateMissing deactivates the active records of a kind not present in keep.
func (r *Repository) DeactivateMissing(ctx context.Context, kind string, keep []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	var n int64
	for id, rec := range r.records[kind] {
		if _, ok := keepSet[id]; ok || !rec.Active {
			continue
		}
		rec.Active = false
		rec.UpdatedAt = time.Now().UTC()
		r.records[kind][id] = rec
		n++
	}

	return n, nil
}

// RecountAggregates recomputes the per kind counters.
func (r *Repository) RecountAggregates(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.aggregates = make(map[string]model.RecordAggregate)
	for kind, recs := range r.records {
		agg := model.RecordAggregate{Kind: kind, UpdatedAt: now}
		for _, rec := range recs {
			agg.TotalCount++
			if rec.Active {
				agg.ActiveCount++
			}
		}
		r.aggregates[kind] = agg
	}

	return nil
}

// GetAggregate returns the counters of a record kind.
func (r *Repository) GetAggregate(ctx context.Context, kind string) (*model.RecordAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg, ok := r.aggregates[kind]
	if !ok {
		return nil, fmt.Errorf("aggregate %s: %w", kind, model.ErrNotFound)
	}

	return &agg, nil
}

// cloneTask returns a deep copy so callers can't mutate the stored meta data.
func cloneTask(t model.Task) (*model.Task, error) {
	meta, err := copyMeta(t.MetaData)
	if err != nil {
		return nil, err
	}
	t.MetaData = meta
	return &t, nil
}

// copyMeta copies the meta data the same way a database round trip would.
func copyMeta(m model.MetaData) (model.MetaData, error) {
	res := model.MetaData{}
	if len(m) == 0 {
		return res, nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("could not marshal meta data: %w", err)
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("could not unmarshal meta data: %w", err)
	}

	return res, nil
}
