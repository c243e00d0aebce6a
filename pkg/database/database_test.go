package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "migrations/001_videos.sql", names[0])

	names, err = migrationFiles(sqliteMigrationsFS, "sqlite_migrations")
	require.NoError(t, err)
	assert.Equal(t, "sqlite_migrations/001_videos.sql", names[0])
}

func TestNewSQLiteAppliesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "clipreview.db")
	db, err := NewSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n))
	assert.Zero(t, n)

	// Migrations are idempotent.
	require.NoError(t, MigrateSQLite(ctx, db))
}
