package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8188", cfg.Server.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Server.HTTPTimeout)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commander.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_url: http://gpu-box:8188
  http_timeout: 30s
fetch:
  max_retries: 5
  rate_rps: 2.5
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8188", cfg.Server.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Server.HTTPTimeout)
	assert.Equal(t, 5, cfg.Fetch.MaxRetries)
	assert.Equal(t, 2.5, cfg.Fetch.RateRPS)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30, cfg.Remote.ReadyRetries)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commander.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  base_url: http://from-file:8188\n"), 0o644))

	t.Setenv("COMMANDER_SERVER_BASE_URL", "http://from-env:8188")
	t.Setenv("COMMANDER_SESSION_TIMEOUT", "10m")
	t.Setenv("COMMANDER_METRICS_ENABLED", "true")
	t.Setenv("COMMANDER_LOG_OUTPUT_PATHS", "stdout, /var/log/commander.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:8188", cfg.Server.BaseURL)
	assert.Equal(t, 10*time.Minute, cfg.Session.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, []string{"stdout", "/var/log/commander.log"}, cfg.Log.OutputPaths)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/commander.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.BaseURL, cfg.Server.BaseURL)
}

func TestLoader_ValidatorRejects(t *testing.T) {
	t.Setenv("COMMANDER_LOG_LEVEL", "shouty")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Server.BaseURL = "not a url"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Fetch.Multiplier = 0.5
	require.Error(t, cfg.Validate())
}
