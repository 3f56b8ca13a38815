package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "./ossip.db", cfg.Database.Path)
	assert.Equal(t, "local", cfg.Notify.Driver)
	assert.Equal(t, "ossip-database-sync", cfg.Notify.Channel)
	assert.Equal(t, "localhost", cfg.Election.IPAddress)
	assert.True(t, cfg.Election.SeedOnInit)
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ossip.yaml")
	content := []byte(`
database:
  type: sqlite
  path: /tmp/from-file.db
notify:
  driver: redis
redis:
  addr: redis.internal:6379
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("DB_PATH", "/tmp/from-env.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	assert.Equal(t, "redis", cfg.Notify.Driver)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateConfigRejectsUnknownDrivers(t *testing.T) {
	cfg := Default()
	cfg.Database.Type = "oracle"
	assert.Error(t, validateConfig(cfg))

	cfg = Default()
	cfg.Notify.Driver = "carrier-pigeon"
	assert.Error(t, validateConfig(cfg))

	cfg = Default()
	cfg.Database.Type = "postgres"
	assert.Error(t, validateConfig(cfg), "postgres without host/user must fail")
}

func TestSQLiteDSNForcesImmediateLocking(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/data/ossip.db"

	dsn := cfg.GetDatabaseDSN()
	assert.Contains(t, dsn, "/data/ossip.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_busy_timeout=5000")
}

func TestSQLiteReadDSNDefersLocking(t *testing.T) {
	cfg := Default()
	cfg.Database.Path = "/data/ossip.db"

	dsn := cfg.Database.ReadDSN()
	assert.Contains(t, dsn, "_txlock=deferred")
	assert.Contains(t, dsn, "_query_only=true")
	assert.NotContains(t, dsn, "immediate")

	cfg.Database.Type = "postgres"
	assert.Equal(t, cfg.Database.DSN(), cfg.Database.ReadDSN())
}

func TestSanitizeForLogging(t *testing.T) {
	cfg := Default()
	cfg.Database.Password = "secret"
	cfg.Redis.Password = "hunter2"

	sanitized := cfg.SanitizeForLogging()
	assert.Equal(t, "[REDACTED]", sanitized.Database.Password)
	assert.Equal(t, "[REDACTED]", sanitized.Redis.Password)
	assert.Equal(t, "[REDACTED]", sanitized.AMQP.URL)
	assert.Equal(t, "secret", cfg.Database.Password)
}
