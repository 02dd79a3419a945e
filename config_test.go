package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_missingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7130", cfg.ListenAddr())
	assert.Equal(t, 3*time.Second, cfg.IdleWindow())
	assert.Equal(t, time.Second, cfg.BackoffMin())
	assert.Equal(t, 30*time.Second, cfg.BackoffMax())
	assert.Equal(t, 64, cfg.Notify.Buffer)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9000
discovery:
  idle_window_seconds: 5
monitor:
  status_port: 13030
  backoff_max_seconds: 60
log:
  level: debug
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.IdleWindow())
	assert.Equal(t, 13030, cfg.Monitor.StatusPort)
	assert.Equal(t, 60*time.Second, cfg.BackoffMax())
	// Untouched sections keep their defaults.
	assert.Equal(t, time.Second, cfg.BackoffMin())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
