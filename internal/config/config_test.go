package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lisho.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":1337", cfg.Listen)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 8192, cfg.MaxRequestLineBytes)
	assert.False(t, cfg.AllowClientCache)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "links.json", cfg.Store.Path)
	assert.True(t, cfg.Metrics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":8080"
read_timeout: 2s
allow_client_cache: true
store:
  backend: sqlite
  path: /var/lib/lisho/links.db
log:
  level: debug
  format: json
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.AllowClientCache)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/var/lib/lisho/links.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)

	// untouched keys keep their defaults
	assert.Equal(t, 8192, cfg.MaxRequestLineBytes)
}

func TestLoadRedisBackend(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: redis
  redis:
    addr: "redis.internal:6379"
    db: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nowhere.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"zero timeout", func(c *Config) { c.ReadTimeout = 0 }, "read_timeout"},
		{"zero line cap", func(c *Config) { c.MaxRequestLineBytes = 0 }, "max_request_line_bytes"},
		{"negative line cap", func(c *Config) { c.MaxRequestLineBytes = -1 }, "max_request_line_bytes"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"file backend without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"sqlite with watch", func(c *Config) { c.Store.Backend, c.Store.Watch = "sqlite", true }, "store.watch"},
		{"redis without addr", func(c *Config) { c.Store.Backend, c.Store.Redis.Addr = "redis", "" }, "store.redis.addr"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestLoadRejectsZeroLineCap(t *testing.T) {
	path := writeConfig(t, "max_request_line_bytes: 0\n")
	_, err := Load(path)
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "max_request_line_bytes", cerr.Field)
}
