package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigPath = "/etc/wdpool/config.yaml"

func writeConfig(t *testing.T, fsys afero.Fs, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, testConfigPath, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Headless)
	assert.Equal(t, "chromedriver", cfg.Drivers.Chrome.Path)
	assert.Equal(t, "geckodriver", cfg.Drivers.Firefox.Path)
	assert.Equal(t, "safaridriver", cfg.Drivers.Safari.Path)
	assert.Equal(t, 2, cfg.Pool.Maximum)
	assert.Equal(t, "none", cfg.Pool.ResetPolicy)
	assert.Equal(t, 100, cfg.Driver.StartRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.Driver.RetryDelay)
	assert.Equal(t, time.Second, cfg.Driver.MaxRetryDelay)
	assert.Equal(t, time.Second, cfg.Process.GracePeriod)
	assert.Empty(t, cfg.Validate(), "defaults must validate")
}

func TestNew_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent")

	v, err := New(afero.NewMemMapFs(), "")
	require.NoError(t, err)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNew_ExplicitMissingFileFails(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, `
bridge: firefox
headless: false
drivers:
  firefox:
    path: /opt/geckodriver
pool:
  minimum: 1
  maximum: 4
  reset_policy: blank
driver:
  start_retries: 20
  retry_delay: 25ms
  max_retry_delay: 500ms
process:
  grace_period: 2s
capabilities:
  - path: alwaysMatch.acceptInsecureCerts
    value: true
  - path: alwaysMatch.moz:firefoxOptions.prefs.dom\.webdriver\.enabled
    value: false
logging:
  level: debug
  file: /tmp/wdpool.log
`)

	v, err := New(fsys, testConfigPath)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "firefox", cfg.Bridge)
	assert.False(t, cfg.Headless)
	assert.Equal(t, "/opt/geckodriver", cfg.DriverPath("firefox"))
	assert.Equal(t, "chromedriver", cfg.DriverPath("chrome"))
	assert.Equal(t, "", cfg.DriverPath("remote"))
	assert.Equal(t, PoolConfig{Minimum: 1, Maximum: 4, ResetPolicy: "blank"}, cfg.Pool)
	assert.Equal(t, DriverConfig{StartRetries: 20, RetryDelay: 25 * time.Millisecond, MaxRetryDelay: 500 * time.Millisecond}, cfg.Driver)
	assert.Equal(t, 2*time.Second, cfg.Process.GracePeriod)
	assert.Equal(t, LoggingConfig{Level: "debug", File: "/tmp/wdpool.log"}, cfg.Logging)

	require.Len(t, cfg.Capabilities, 2)
	assert.Equal(t, "alwaysMatch.acceptInsecureCerts", cfg.Capabilities[0].Path, "capability paths keep their case")
	assert.Equal(t, true, cfg.CapabilityMap()["alwaysMatch.acceptInsecureCerts"])
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "bridge: chrome\npool:\n  maximum: 3\n")
	t.Setenv("WDPOOL_BRIDGE", "safari")
	t.Setenv("WDPOOL_POOL_MAXIMUM", "6")
	t.Setenv("WDPOOL_PROCESS_GRACE_PERIOD", "1500ms")

	v, err := New(fsys, testConfigPath)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "safari", cfg.Bridge)
	assert.Equal(t, 6, cfg.Pool.Maximum)
	assert.Equal(t, 1500*time.Millisecond, cfg.Process.GracePeriod)
}

func TestLoad_InvalidCapabilities(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "capabilities: 42\n")

	v, err := New(fsys, testConfigPath)
	require.NoError(t, err)
	_, err = Load(v)
	assert.ErrorContains(t, err, "capabilities")
}

func TestHandleChange(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "pool:\n  maximum: 2\n")
	v, err := New(fsys, testConfigPath)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, "DEBUG")

	var got []*Config
	record := func(c *Config) { got = append(got, c) }

	writeConfig(t, fsys, "pool:\n  maximum: 5\n")
	require.NoError(t, v.ReadInConfig())
	handleChange(v, fsnotify.Event{Name: testConfigPath, Op: fsnotify.Write}, logger, record)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Pool.Maximum)

	handleChange(v, fsnotify.Event{Name: testConfigPath, Op: fsnotify.Chmod}, logger, record)
	assert.Len(t, got, 1, "chmod events are ignored")

	writeConfig(t, fsys, "pool:\n  maximum: -3\n")
	require.NoError(t, v.ReadInConfig())
	handleChange(v, fsnotify.Event{Name: testConfigPath, Op: fsnotify.Write}, logger, record)
	assert.Len(t, got, 1, "invalid config must not be applied")
	assert.Contains(t, buf.String(), "ignoring invalid config change")
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/wdpool", ConfigDir())
	assert.Equal(t, "/xdg/wdpool/config.yaml", ConfigFile())
}
