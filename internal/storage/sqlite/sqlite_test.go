package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EloyM96/avisor/internal/common"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	config := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "avisor.db"),
		WALMode:       true,
		BusyTimeoutMS: 5000,
	}
	manager, err := NewManager(common.GetLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestManagerOpensAndMigrates(t *testing.T) {
	manager := newTestManager(t)

	var count int
	err := manager.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 2)

	// Reopening the same file is a no-op migration-wise
	config := &common.SQLiteConfig{Path: manager.db.config.Path, BusyTimeoutMS: 5000}
	again, err := NewSQLiteDB(common.GetLogger(), config)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
