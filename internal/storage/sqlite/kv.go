package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slok/bosync/internal/model"
)

// SetValue stores a value, a ttl of 0 never expires.
func (r *Repository) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *int64
	if ttl > 0 {
		e := time.Now().UTC().Add(ttl).Unix()
		expiresAt = &e
	}

	query := `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return fmt.Errorf("could not set value: %w", err)
	}

	return nil
}

// GetValue returns a non expired value.
func (r *Repository) GetValue(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`

	var value string
	err := r.db.QueryRowContext(ctx, query, key, time.Now().UTC().Unix()).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not get value: %w", err)
	}

	return value, nil
}

// DeleteExpired removes the expired values.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("could not delete expired values: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}

	r.logger.Debugf("Deleted %d expired values", rows)
	return rows, nil
}
