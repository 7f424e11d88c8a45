package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/Iron-Ham/wdpool/internal/bridge"
	"github.com/Iron-Ham/wdpool/internal/config"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/Iron-Ham/wdpool/internal/pool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto config keys. Flags a command does
// not define are skipped.
var flagKeys = map[string]string{
	"log-level": "logging.level",
	"bridge":    "bridge",
	"max":       "pool.maximum",
	"min":       "pool.minimum",
	"reset":     "pool.reset_policy",
}

// env is the configuration a command runs with.
type env struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *logging.Logger

	mu      sync.Mutex
	maximum int // pool.maximum, updated by config reloads
}

// loadEnv reads configuration for cmd, with its flags taking precedence
// over environment and file values.
func loadEnv(cmd *cobra.Command) (*env, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	v, err := config.New(appFs, path)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.File, logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	return &env{v: v, cfg: cfg, logger: logger, maximum: cfg.Pool.Maximum}, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// Close releases the log file.
func (e *env) Close() error {
	return e.logger.Close()
}

// registry returns the default bridges, with the remote bridge requesting
// the configured browser.
func (e *env) registry() *bridge.Registry {
	r := bridge.DefaultRegistry()
	browser := e.cfg.Remote.Browser
	r.Register("remote", func(opts ...bridge.Option) bridge.Bridge {
		return bridge.Remote(browser, opts...)
	})
	return r
}

// bridgeOptions returns the configured options for the named bridge.
func (e *env) bridgeOptions(name string) []bridge.Option {
	opts := []bridge.Option{
		bridge.WithPath(e.cfg.DriverPath(name)),
		bridge.WithGracePeriod(e.cfg.Process.GracePeriod),
		bridge.WithRetryDelay(e.cfg.Driver.RetryDelay, e.cfg.Driver.MaxRetryDelay),
	}
	if name == "remote" {
		opts = append(opts, bridge.WithURL(e.cfg.Remote.URL))
		if e.cfg.Remote.Concurrency > 0 {
			opts = append(opts, bridge.WithConcurrency(e.cfg.Remote.Concurrency))
		}
	}
	return opts
}

// bridge resolves the configured bridge, or the first installed one.
func (e *env) bridge(ctx context.Context) (bridge.Bridge, error) {
	return e.registry().Default(ctx, e.cfg.Bridge, e.bridgeOptions)
}

// newBridge constructs a bridge by name.
func (e *env) newBridge(name string) (bridge.Bridge, error) {
	return e.registry().New(name, e.bridgeOptions(name)...)
}

// poolOptions returns the configured pool options for b.
func (e *env) poolOptions(b bridge.Bridge) ([]pool.Option, error) {
	caps, err := bridge.MergeCapabilities(b.Capabilities(e.cfg.Headless), e.cfg.CapabilityMap())
	if err != nil {
		return nil, fmt.Errorf("capabilities: %w", err)
	}
	policy, err := pool.ParseResetPolicy(e.cfg.Pool.ResetPolicy)
	if err != nil {
		return nil, err
	}

	return []pool.Option{
		pool.WithMinimum(e.cfg.Pool.Minimum),
		pool.WithMaximum(e.poolMaximum()),
		pool.WithHeadless(e.cfg.Headless),
		pool.WithCapabilities(caps),
		pool.WithResetPolicy(policy),
		pool.WithStartRetries(e.cfg.Driver.StartRetries),
		pool.WithLogger(e.logger),
	}, nil
}

func (e *env) poolMaximum() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maximum
}

// setPoolMaximum changes the maximum given to pools built from now on.
func (e *env) setPoolMaximum(n int) {
	e.mu.Lock()
	e.maximum = n
	e.mu.Unlock()
}

// newPool builds an unstarted pool for the named bridge.
func (e *env) newPool(name string) (*pool.Pool, error) {
	b, err := e.newBridge(name)
	if err != nil {
		return nil, err
	}
	opts, err := e.poolOptions(b)
	if err != nil {
		return nil, err
	}
	return pool.New(b, opts...), nil
}
