package pool

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/wdpool/internal/bridge"
	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
)

// Config holds the settings for a Pool.
type Config struct {
	// Minimum is how many drivers Start launches ahead of demand.
	Minimum int
	// Maximum bounds concurrent driver processes; 0 is unbounded.
	Maximum int
	// Capabilities is the JSON object sent with POST /session. Nil uses the
	// bridge defaults.
	Capabilities []byte
	Headless     bool
	ResetPolicy  ResetPolicy
	// StartRetries is the readiness-polling budget per driver.
	StartRetries int
	Logger       *logging.Logger

	newDriver func() *driver.Driver
}

// Option configures a Pool.
type Option func(*Config)

// WithMinimum sets how many drivers Start launches.
func WithMinimum(n int) Option {
	return func(c *Config) { c.Minimum = n }
}

// WithMaximum bounds concurrent driver processes.
func WithMaximum(n int) Option {
	return func(c *Config) { c.Maximum = n }
}

// WithCapabilities replaces the bridge's default capabilities.
func WithCapabilities(caps []byte) Option {
	return func(c *Config) { c.Capabilities = caps }
}

// WithHeadless selects headless default capabilities.
func WithHeadless(headless bool) Option {
	return func(c *Config) { c.Headless = headless }
}

// WithResetPolicy sets what happens to browser state on release.
func WithResetPolicy(p ResetPolicy) Option {
	return func(c *Config) { c.ResetPolicy = p }
}

// WithStartRetries sets the readiness-polling budget per driver.
func WithStartRetries(n int) Option {
	return func(c *Config) { c.StartRetries = n }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Pool hands out WebDriver sessions for one bridge.
//
//	p := pool.New(bridge.Chrome(), pool.WithMaximum(2))
//	defer p.Close(ctx)
//
//	err := p.WithSession(ctx, func(s *pool.Session) error {
//	    return s.Navigate(ctx, "https://example.com")
//	})
type Pool struct {
	name       string
	controller *BridgeController
	logger     *logging.Logger
}

// New returns a pool for b. No driver is started until the first session
// is requested or Start is called.
func New(b bridge.Bridge, opts ...Option) *Pool {
	cfg := Config{
		Headless:     true,
		ResetPolicy:  ResetNone,
		StartRetries: driver.DefaultRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = b.Capabilities(cfg.Headless)
	}

	return &Pool{
		name:       b.Name(),
		controller: NewBridgeController(b, cfg),
		logger:     cfg.Logger.WithBridge(b.Name()),
	}
}

// Name returns the bridge name.
func (p *Pool) Name() string {
	return p.name
}

// Start launches the configured minimum number of drivers.
func (p *Pool) Start(ctx context.Context) error {
	return p.controller.Prepare(ctx)
}

// Session acquires a session, blocking while the pool is at capacity. The
// caller must Close (release) or Retire it.
func (p *Pool) Session(ctx context.Context) (*Session, error) {
	return p.controller.Acquire(ctx)
}

// WithSession acquires a session, runs fn, and releases the session on every
// exit path, including a panic in fn, which is re-raised after release. If
// fn's error shows the driver is unhealthy the session is retired instead.
func (p *Pool) WithSession(ctx context.Context, fn func(*Session) error) (err error) {
	s, err := p.Session(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = s.Release(ctx)
			panic(r)
		}
		if errors.Is(err, errors.ErrDriverUnhealthy) {
			if rerr := s.Retire(); rerr != nil {
				p.logger.Warn("retiring session failed", "error", rerr)
			}
			return
		}
		if rerr := s.Release(ctx); rerr != nil && err == nil {
			err = fmt.Errorf("release session: %w", rerr)
		}
	}()

	return fn(s)
}

// SetMaximum changes the bound on driver processes.
func (p *Pool) SetMaximum(n int) {
	p.controller.SetMaximum(n)
}

// Stats returns the pool's bookkeeping.
func (p *Pool) Stats() Stats {
	return p.controller.Stats()
}

// Close wakes blocked callers with *errors.PoolClosedError and terminates
// every driver.
func (p *Pool) Close(ctx context.Context) error {
	p.logger.Info("closing pool")
	return p.controller.Close(ctx)
}
