package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationFilesSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_create_targets.sql", "001_create_credentials.sql", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	files, err := listMigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_credentials.sql", "002_create_targets.sql"}, files)
}

func TestListMigrationFilesMissingDir(t *testing.T) {
	_, err := listMigrationFiles(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
