package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.Extractor.Model)
	assert.Equal(t, 60, cfg.Extractor.RateCacheTTLMin)
	assert.Equal(t, 300, cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, "9090", cfg.Server.MetricsPort)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  host: db.internal
  name: finance
scheduler:
  interval_seconds: 60
ledger:
  base_url: http://ledger.internal:8000
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "finance", cfg.DB.Name)
	assert.Equal(t, 5432, cfg.DB.Port, "unset fields keep their defaults")
	assert.Equal(t, 60, cfg.Scheduler.IntervalSeconds)
	assert.Equal(t, "http://ledger.internal:8000", cfg.Ledger.BaseURL)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  host: from-file
extractor:
  api_key: file-key
`), 0o600))

	t.Setenv("DB_HOST", "from-env")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("ENCRYPTION_KEY", "env-encryption-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.DB.Host)
	assert.Equal(t, "env-key", cfg.Extractor.APIKey)
	assert.Equal(t, "env-encryption-key", cfg.Encryption.Key)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: [not a mapping"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
