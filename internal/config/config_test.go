package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDSNAndSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn")
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  dsn: postgres://localhost/commentboard
session:
  secret: hunter2
redis:
  addr: 127.0.0.1:6379
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/commentboard", cfg.DB.DSN)
	assert.Equal(t, "hunter2", cfg.Session.Secret)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	// Defaults fill the rest.
	assert.Equal(t, "127.0.0.1:4000", cfg.HTTP.Listen)
	assert.Equal(t, "", cfg.NATS.URL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COMMENTBOARD_DB_DSN", "postgres://db.internal/board")
	t.Setenv("COMMENTBOARD_SESSION_SECRET", "env-secret")
	t.Setenv("COMMENTBOARD_HTTP_LISTEN", "0.0.0.0:8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://db.internal/board", cfg.DB.DSN)
	assert.Equal(t, "env-secret", cfg.Session.Secret)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Listen)
}
