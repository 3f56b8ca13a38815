// Package dbtest opens throwaway SQLite stores for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// Config returns a database configuration pointing at a fresh file in the
// test's temporary directory.
func Config(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Type:         "sqlite",
		Path:         filepath.Join(t.TempDir(), "election.db"),
		BusyTimeout:  10 * time.Second,
		MaxOpenConns: 8,
		MaxIdleConns: 4,
	}
}

// NewStore opens and migrates a store that is closed when the test ends
func NewStore(t *testing.T) *database.Store {
	t.Helper()
	return OpenStore(t, Config(t))
}

// OpenStore opens and migrates a store for cfg
func OpenStore(t *testing.T, cfg config.DatabaseConfig) *database.Store {
	t.Helper()
	store, err := database.Open(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, database.RunMigrations(context.Background(), store))
	return store
}
