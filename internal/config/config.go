package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WDPOOL_BRIDGE or
// WDPOOL_POOL_MAXIMUM.
const EnvPrefix = "WDPOOL"

// Config represents the complete wdpool configuration
type Config struct {
	// Bridge selects the vendor driver. Empty picks the first installed one.
	Bridge string `mapstructure:"bridge"`
	// Headless requests headless browsers in the default capabilities.
	Headless bool          `mapstructure:"headless"`
	Drivers  DriversConfig `mapstructure:"drivers"`
	Remote   RemoteConfig  `mapstructure:"remote"`
	Pool     PoolConfig    `mapstructure:"pool"`
	Driver   DriverConfig  `mapstructure:"driver"`
	Process  ProcessConfig `mapstructure:"process"`
	Logging  LoggingConfig `mapstructure:"logging"`

	// Capabilities are overrides applied on top of the bridge defaults.
	// Read separately because viper lowercases map keys.
	Capabilities []CapabilityOverride `mapstructure:"-"`
}

// DriversConfig holds per-vendor executable paths
type DriversConfig struct {
	Chrome  DriverPathConfig `mapstructure:"chrome"`
	Firefox DriverPathConfig `mapstructure:"firefox"`
	Safari  DriverPathConfig `mapstructure:"safari"`
}

// DriverPathConfig locates one driver binary
type DriverPathConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig points at an externally managed remote end
type RemoteConfig struct {
	URL string `mapstructure:"url"`
	// Browser is the browserName requested from the remote end.
	Browser string `mapstructure:"browser"`
	// Concurrency bounds sessions per remote end (0 = unbounded).
	Concurrency int `mapstructure:"concurrency"`
}

// PoolConfig bounds the driver pool
type PoolConfig struct {
	// Minimum is how many drivers are started ahead of demand.
	Minimum int `mapstructure:"minimum"`
	// Maximum bounds concurrent driver processes (0 = unbounded).
	Maximum int `mapstructure:"maximum"`
	// ResetPolicy is "none" or "blank".
	ResetPolicy string `mapstructure:"reset_policy"`
}

// DriverConfig controls readiness polling
type DriverConfig struct {
	StartRetries  int           `mapstructure:"start_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

// ProcessConfig controls driver process termination
type ProcessConfig struct {
	// GracePeriod is how long a driver gets after SIGINT before SIGKILL.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// LoggingConfig controls logging
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File is the log destination. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// CapabilityOverride sets (or, with a nil Value, deletes) one sjson path in
// the session capabilities.
type CapabilityOverride struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Headless: true,
		Drivers: DriversConfig{
			Chrome:  DriverPathConfig{Path: "chromedriver"},
			Firefox: DriverPathConfig{Path: "geckodriver"},
			Safari:  DriverPathConfig{Path: "safaridriver"},
		},
		Pool: PoolConfig{
			Minimum:     0,
			Maximum:     2,
			ResetPolicy: "none",
		},
		Driver: DriverConfig{
			StartRetries:  100,
			RetryDelay:    10 * time.Millisecond,
			MaxRetryDelay: time.Second,
		},
		Process: ProcessConfig{
			GracePeriod: time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("bridge", defaults.Bridge)
	v.SetDefault("headless", defaults.Headless)

	v.SetDefault("drivers.chrome.path", defaults.Drivers.Chrome.Path)
	v.SetDefault("drivers.firefox.path", defaults.Drivers.Firefox.Path)
	v.SetDefault("drivers.safari.path", defaults.Drivers.Safari.Path)

	v.SetDefault("remote.url", defaults.Remote.URL)
	v.SetDefault("remote.browser", defaults.Remote.Browser)
	v.SetDefault("remote.concurrency", defaults.Remote.Concurrency)

	v.SetDefault("pool.minimum", defaults.Pool.Minimum)
	v.SetDefault("pool.maximum", defaults.Pool.Maximum)
	v.SetDefault("pool.reset_policy", defaults.Pool.ResetPolicy)

	v.SetDefault("driver.start_retries", defaults.Driver.StartRetries)
	v.SetDefault("driver.retry_delay", defaults.Driver.RetryDelay)
	v.SetDefault("driver.max_retry_delay", defaults.Driver.MaxRetryDelay)

	v.SetDefault("process.grace_period", defaults.Process.GracePeriod)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// New returns a viper instance with defaults and environment overrides
// registered, reading the config file at path from fsys. An empty path
// reads ConfigFile() if it exists. A path given explicitly must exist.
func New(fsys afero.Fs, path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(fsys)
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = ConfigFile()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !explicit && isNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

// Load decodes v into a Config and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}

	overrides, err := capabilityOverrides(v.Get("capabilities"))
	if err != nil {
		return nil, err
	}
	cfg.Capabilities = overrides

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// capabilityOverrides reads the "capabilities" list:
//
//	capabilities:
//	  - path: alwaysMatch.acceptInsecureCerts
//	    value: true
func capabilityOverrides(raw any) ([]CapabilityOverride, error) {
	if raw == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("capabilities: expected a list of {path, value}: %w", err)
	}

	overrides := make([]CapabilityOverride, 0, len(items))
	for i, item := range items {
		entry, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, fmt.Errorf("capabilities[%d]: %w", i, err)
		}
		path, err := cast.ToStringE(entry["path"])
		if err != nil {
			return nil, fmt.Errorf("capabilities[%d].path: %w", i, err)
		}
		overrides = append(overrides, CapabilityOverride{Path: path, Value: entry["value"]})
	}
	return overrides, nil
}

// CapabilityMap returns the overrides keyed by path.
func (c *Config) CapabilityMap() map[string]any {
	if len(c.Capabilities) == 0 {
		return nil
	}
	m := make(map[string]any, len(c.Capabilities))
	for _, o := range c.Capabilities {
		m[o.Path] = o.Value
	}
	return m
}

// DriverPath returns the configured executable for a vendor bridge.
func (c *Config) DriverPath(bridge string) string {
	switch bridge {
	case "chrome":
		return c.Drivers.Chrome.Path
	case "firefox":
		return c.Drivers.Firefox.Path
	case "safari":
		return c.Drivers.Safari.Path
	default:
		return ""
	}
}

// Watch re-reads the config file whenever it changes and passes the new
// configuration to fn. Invalid configurations are logged and skipped.
func Watch(v *viper.Viper, logger *logging.Logger, fn func(*Config)) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		handleChange(v, e, logger, fn)
	})
	v.WatchConfig()
}

func handleChange(v *viper.Viper, e fsnotify.Event, logger *logging.Logger, fn func(*Config)) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := Load(v)
	if err != nil {
		logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
		return
	}
	logger.Info("config reloaded", "file", e.Name)
	fn(cfg)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wdpool")
	}
	// Fall back to ~/.config/wdpool
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wdpool"
	}
	return filepath.Join(home, ".config", "wdpool")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
