package migrations_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/slok/bosync/internal/storage/sqlite/migrations"
)

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'schema_migrations' AND name NOT LIKE 'sqlite_%'`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestNewMigrator(t *testing.T) {
	_, err := migrations.NewMigrator(migrations.MigratorConfig{})
	assert.Error(t, err)
}

func TestMigratorUpDown(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db})
	require.NoError(err)

	v, err := m.Up(ctx)
	require.NoError(err)
	assert.EqualValues(1, v)
	assert.ElementsMatch([]string{"tasks", "kv", "locks", "records", "record_aggregates"}, tableNames(t, db))

	// Running again is a no-op.
	v, err = m.Up(ctx)
	require.NoError(err)
	assert.EqualValues(1, v)

	require.NoError(m.Down(ctx))
	assert.Empty(tableNames(t, db))

	v, err = m.Up(ctx)
	require.NoError(err)
	assert.EqualValues(1, v)
}
