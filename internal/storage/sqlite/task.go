package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/bosync/internal/model"
)

const taskColumns = `
	id, name, type, type_group, target_id, meta_data, status, times_ran,
	date_created, date_updated, date_last_processed, execution_duration, error_output
`

// execQuerier is satisfied by both the pool and a single connection.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateTask inserts a task and returns the ID assigned by the store.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) (int64, error) {
	id, err := insertTask(ctx, r.db, t)
	if err != nil {
		return 0, err
	}

	r.logger.Debugf("Created task %d: %s", id, t.Name)
	return id, nil
}

// FindOrCreateTask reuses the latest non success task named like t, moving it
// back to new, or inserts t when there is none. The lookup and the write share
// an immediate transaction so concurrent schedulers of a name serialize on the
// database write lock.
func (r *Repository) FindOrCreateTask(ctx context.Context, t model.Task) (*model.Task, bool, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("could not get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, false, fmt.Errorf("could not begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE name = ? AND status != ? ORDER BY id DESC LIMIT 1`
	existing, err := scanTask(conn.QueryRowContext(ctx, query, t.Name, model.TaskStatusSuccess))

	var id int64
	created := false
	switch {
	case err == nil:
		id = existing.ID
		if existing.Status != model.TaskStatusNew {
			_, err := conn.ExecContext(ctx, `UPDATE tasks SET status = ?, date_updated = ? WHERE id = ?`,
				model.TaskStatusNew, time.Now().UTC().Unix(), id)
			if err != nil {
				return nil, false, fmt.Errorf("could not reset task: %w", err)
			}
			r.logger.Debugf("Task %d moved from %s back to new", id, existing.Status)
		}
	case errors.Is(err, sql.ErrNoRows):
		id, err = insertTask(ctx, conn, t)
		if err != nil {
			return nil, false, err
		}
		created = true
		r.logger.Debugf("Created task %d: %s", id, t.Name)
	default:
		return nil, false, fmt.Errorf("could not query task: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, false, fmt.Errorf("could not commit transaction: %w", err)
	}
	committed = true

	got, err := r.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}

	return got, created, nil
}

func insertTask(ctx context.Context, q execQuerier, t model.Task) (int64, error) {
	meta, err := marshalMeta(t.MetaData)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	query := `
		INSERT INTO tasks (
			name, type, type_group, target_id, meta_data, status, times_ran,
			date_created, date_updated, date_last_processed, execution_duration, error_output
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := q.ExecContext(ctx, query,
		t.Name,
		t.Type,
		t.TypeGroup,
		t.TargetID,
		meta,
		t.Status,
		t.TimesRan,
		t.CreatedAt.Unix(),
		t.UpdatedAt.Unix(),
		unixOrNil(t.LastProcessedAt),
		t.ExecutionDuration.Milliseconds(),
		t.ErrorOutput,
	)
	if err != nil {
		return 0, fmt.Errorf("could not insert task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not get task id: %w", err)
	}

	return id, nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return t, nil
}

// UpdateTask updates all the mutable fields of a task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	meta, err := marshalMeta(t.MetaData)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET
			meta_data = ?,
			status = ?,
			times_ran = ?,
			date_updated = ?,
			date_last_processed = ?,
			execution_duration = ?,
			error_output = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		meta,
		t.Status,
		t.TimesRan,
		time.Now().UTC().Unix(),
		unixOrNil(t.LastProcessedAt),
		t.ExecutionDuration.Milliseconds(),
		t.ErrorOutput,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	return checkAffected(result, fmt.Sprintf("task %d", t.ID))
}

// UpdateTaskStatus sets the status and the error output of a task.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id int64, status model.TaskStatus, errorOutput string) error {
	query := `UPDATE tasks SET status = ?, error_output = ?, date_updated = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, errorOutput, time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("could not update task status: %w", err)
	}

	if err := checkAffected(result, fmt.Sprintf("task %d", id)); err != nil {
		return err
	}

	r.logger.Debugf("Task %d status set to %s", id, status)
	return nil
}

// ClaimTask atomically moves a task from new to processing.
func (r *Repository) ClaimTask(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE tasks SET status = ?, date_updated = ? WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, model.TaskStatusProcessing, time.Now().UTC().Unix(), id, model.TaskStatusNew)
	if err != nil {
		return false, fmt.Errorf("could not claim task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ListPendingTaskIDs returns the ids of the new tasks. Order types are selected
// first so they don't starve behind bulk tasks, each partition capped by the page size.
func (r *Repository) ListPendingTaskIDs(ctx context.Context, q model.PendingQuery) ([]int64, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	orderTypes := make([]any, 0, len(q.OrderTypes))
	for _, t := range q.OrderTypes {
		orderTypes = append(orderTypes, string(t))
	}

	var ids []int64

	// Order related partition.
	if len(orderTypes) > 0 {
		where := []string{"status = ?", "type IN (" + placeholders(len(orderTypes)) + ")"}
		args := append([]any{model.TaskStatusNew}, orderTypes...)
		if q.TypeGroup != "" {
			where = append(where, "type_group = ?")
			args = append(args, q.TypeGroup)
		}

		part, err := r.queryIDs(ctx, where, args, pageSize)
		if err != nil {
			return nil, fmt.Errorf("could not list order tasks: %w", err)
		}
		ids = append(ids, part...)
	}

	// Rest of the tasks.
	where := []string{"status = ?"}
	args := []any{model.TaskStatusNew}
	if len(orderTypes) > 0 {
		where = append(where, "type NOT IN ("+placeholders(len(orderTypes))+")")
		args = append(args, orderTypes...)
	}
	if q.TypeGroup != "" {
		where = append(where, "type_group = ?")
		args = append(args, q.TypeGroup)
	}

	part, err := r.queryIDs(ctx, where, args, pageSize)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	ids = append(ids, part...)

	return ids, nil
}

func (r *Repository) queryIDs(ctx context.Context, where []string, args []any, limit int) ([]int64, error) {
	query := `SELECT id FROM tasks WHERE ` + strings.Join(where, " AND ") + ` ORDER BY times_ran ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// ListTasks returns the tasks matching the filter ordered by ID.
func (r *Repository) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	where, args := filterWhere(f)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// FindActiveTaskByName returns the latest non success task with the name.
func (r *Repository) FindActiveTaskByName(ctx context.Context, name string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE name = ? AND status != ? ORDER BY id DESC LIMIT 1`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, name, model.TaskStatusSuccess))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active task %s: %w", name, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return t, nil
}

// DeleteTasks deletes the tasks matching the filter.
func (r *Repository) DeleteTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	where, args := filterWhere(f)
	query := `DELETE FROM tasks` + where

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("could not delete tasks: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}

	r.logger.Debugf("Deleted %d tasks", rows)
	return rows, nil
}

// CountTasks counts the tasks matching the filter.
func (r *Repository) CountTasks(ctx context.Context, f model.TaskFilter) (int64, error) {
	where, args := filterWhere(f)
	query := `SELECT COUNT(*) FROM tasks` + where

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("could not count tasks: %w", err)
	}

	return count, nil
}

// filterWhere builds the where clause of a task filter, limit is ignored.
func filterWhere(f model.TaskFilter) (string, []any) {
	var (
		where []string
		args  []any
	)

	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if len(f.Names) > 0 {
		where = append(where, "name IN ("+placeholders(len(f.Names))+")")
		for _, n := range f.Names {
			args = append(args, n)
		}
	}
	if len(f.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.TypeGroups) > 0 {
		where = append(where, "type_group IN ("+placeholders(len(f.TypeGroups))+")")
		for _, g := range f.TypeGroups {
			args = append(args, g)
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.TargetID != nil {
		where = append(where, "target_id = ?")
		args = append(args, *f.TargetID)
	}

	if len(where) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(where, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t             model.Task
		meta          []byte
		createdAt     int64
		updatedAt     int64
		lastProcessed sql.NullInt64
		durationMs    int64
	)

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Type,
		&t.TypeGroup,
		&t.TargetID,
		&meta,
		&t.Status,
		&t.TimesRan,
		&createdAt,
		&updatedAt,
		&lastProcessed,
		&durationMs,
		&t.ErrorOutput,
	)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.MetaData); err != nil {
			return nil, fmt.Errorf("could not unmarshal task %d meta data: %w", t.ID, err)
		}
	}
	if t.MetaData == nil {
		t.MetaData = model.MetaData{}
	}

	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastProcessed.Valid {
		lp := time.Unix(lastProcessed.Int64, 0).UTC()
		t.LastProcessedAt = &lp
	}
	t.ExecutionDuration = time.Duration(durationMs) * time.Millisecond

	return &t, nil
}

// marshalMeta serializes the meta data as an opaque blob.
func marshalMeta(m model.MetaData) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("could not marshal meta data: %w", err)
	}

	return b, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func checkAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}
