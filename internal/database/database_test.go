package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.FileExists(t, path)
}

func TestMigrateCreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	version, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var tables []string
	require.NoError(t, db.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'goose_db_version' ORDER BY name`))
	assert.Equal(t, []string{
		"entities",
		"entity_merges",
		"external_ids",
		"normalization_sidecar",
		"reconcile_runs",
		"review_items",
	}, tables)

	again, err := Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, version, again, "migrating twice is a no-op")
}
