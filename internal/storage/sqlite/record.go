package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/model"
)

// UpsertRecord creates or updates a local record by its external ID.
func (r *Repository) UpsertRecord(ctx context.Context, rec model.LocalRecord) error {
	if rec.Kind == "" || rec.ExternalID == "" {
		return fmt.Errorf("record kind and external id are required: %w", model.ErrNotValid)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("could not marshal record data: %w", err)
	}

	query := `
		INSERT INTO records (kind, external_id, data, active, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, external_id) DO UPDATE SET
			data = excluded.data,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query, rec.Kind, rec.ExternalID, data, rec.Active, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("could not upsert record: %w", err)
	}

	return nil
}

// GetRecord returns a local record by its external ID.
func (r *Repository) GetRecord(ctx context.Context, kind, externalID string) (*model.LocalRecord, error) {
	query := `SELECT kind, external_id, data, active, updated_at FROM records WHERE kind = ? AND external_id = ?`

	var (
		rec       model.LocalRecord
		data      []byte
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, kind, externalID).Scan(&rec.Kind, &rec.ExternalID, &data, &rec.Active, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s/%s: %w", kind, externalID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query record: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("could not unmarshal record data: %w", err)
		}
	}
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &rec, nil
}

// DeleteRecord deletes a local record.
func (r *Repository) DeleteRecord(ctx context.Context, kind, externalID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND external_id = ?`, kind, externalID)
	if err != nil {
		return fmt.Errorf("could not delete record: %w", err)
	}

	return checkAffected(result, fmt.Sprintf("record %s/%s", kind, externalID))
}

// ListRecordIDs returns the external IDs of a record kind.
func (r *Repository) ListRecordIDs(ctx context.Context, kind string, activeOnly bool) ([]string, error) {
	query := `SELECT external_id FROM records WHERE kind = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY external_id ASC`

	rows, err := r.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("could not query records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
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

// DeactivateMissing deactivates the active records of a kind not present in keep.
func (r *Repository) DeactivateMissing(ctx context.Context, kind string, keep []string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A temporary table avoids the bound parameters limit with big catalogs.
	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_ids (external_id TEXT PRIMARY KEY)`); err != nil {
		return 0, fmt.Errorf("could not create keep table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_ids`); err != nil {
		return 0, fmt.Errorf("could not reset keep table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO keep_ids (external_id) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range keep {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return 0, fmt.Errorf("could not insert keep id: %w", err)
		}
	}

	query := `
		UPDATE records SET active = 0, updated_at = ?
		WHERE kind = ? AND active = 1 AND external_id NOT IN (SELECT external_id FROM keep_ids)
	`
	result, err := tx.ExecContext(ctx, query, time.Now().UTC().Unix(), kind)
	if err != nil {
		return 0, fmt.Errorf("could not deactivate records: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Deactivated %d %s records missing upstream", rows, kind)
	return rows, nil
}

// RecountAggregates recomputes the per kind counters from the records.
func (r *Repository) RecountAggregates(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM record_aggregates`); err != nil {
		return fmt.Errorf("could not reset aggregates: %w", err)
	}

	query := `
		INSERT INTO record_aggregates (kind, active_count, total_count, updated_at)
		SELECT kind, SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), COUNT(*), ?
		FROM records
		GROUP BY kind
	`
	if _, err := tx.ExecContext(ctx, query, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("could not recount aggregates: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// GetAggregate returns the counters of a record kind.
func (r *Repository) GetAggregate(ctx context.Context, kind string) (*model.RecordAggregate, error) {
	query := `SELECT kind, active_count, total_count, updated_at FROM record_aggregates WHERE kind = ?`

	var (
		agg       model.RecordAggregate
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, kind).Scan(&agg.Kind, &agg.ActiveCount, &agg.TotalCount, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("aggregate %s: %w", kind, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query aggregate: %w", err)
	}
	agg.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &agg, nil
}
