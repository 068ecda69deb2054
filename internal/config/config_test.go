package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
database: /var/lib/procura.db
layouts: ./layouts
log:
  level: debug
  format: json
source:
  kind: gcs
  bucket: sicoes-forms
  prefix: forms/
ingest:
  workers: 20
  fetch_timeout: 15s
  skip_unchanged: true
  failure_log: errors.txt
lock:
  backend: redis
  redis_addr: localhost:6379
`), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/procura.db", cfg.Database)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, SourceGCS, cfg.Source.Kind)
	assert.Equal(t, "forms/", cfg.Source.Prefix)
	assert.Equal(t, 20, cfg.Ingest.Workers)
	assert.Equal(t, 15*time.Second, cfg.Ingest.FetchTimeout)
	assert.Equal(t, uint(5), cfg.Ingest.MaxTries, "defaults survive partial files")
	assert.True(t, cfg.Ingest.SkipUnchanged)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("databse: x.db\n"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "databse")
}

func TestParseEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, envOf(map[string]string{
		"PROCURA_DB":           "env.db",
		"PROCURA_SOURCE":       "http",
		"PROCURA_BASE_URL":     "https://storage.googleapis.com/sicoescan/forms/",
		"GOOGLE_CLOUD_PROJECT": "proj",
		"REDIS_ADDR":           "redis:6379",
		"PORT":                 "9090",
		"PROCURA_WORKERS":      "8",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, SourceHTTP, cfg.Source.Kind)
	assert.Equal(t, "proj", cfg.PubSub.Project)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
	assert.Equal(t, "redis:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Ingest.Workers)
}

func TestApplyEnvPrefersFirstKey(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, envOf(map[string]string{
		"PUBSUB_PROJECT_ID":    "explicit",
		"GOOGLE_CLOUD_PROJECT": "ambient",
	})))
	assert.Equal(t, "explicit", cfg.PubSub.Project)
}

func TestApplyEnvBadNumber(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, envOf(map[string]string{"PORT": "eighty"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing database", func(c *Config) { c.Database = "" }, "Database"},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "Kind"},
		{"http without url", func(c *Config) { c.Source.Kind = SourceHTTP }, "BaseURL"},
		{"gcs without bucket", func(c *Config) { c.Source.Kind = SourceGCS }, "Bucket"},
		{"redis without addr", func(c *Config) { c.Lock.Backend = LockRedis }, "RedisAddr"},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }, "Workers"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("PROCURA_WORKERS=3\n"), 0o644))
	path := filepath.Join(dir, "procura.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: file.db\n"), 0o644))
	t.Setenv("PROCURA_DB", "")
	// Registers a restore, then clears the variable so .env can set it.
	t.Setenv("PROCURA_WORKERS", "")
	require.NoError(t, os.Unsetenv("PROCURA_WORKERS"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file.db", cfg.Database)
	assert.Equal(t, 3, cfg.Ingest.Workers)
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
