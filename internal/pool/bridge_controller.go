package pool

import (
	"context"

	"github.com/Iron-Ham/wdpool/internal/bridge"
	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
)

// cacheFactory spawns a driver for the bridge and wraps it in a SessionCache.
type cacheFactory struct {
	bridge       bridge.Bridge
	capabilities []byte
	retries      int
	reset        ResetPolicy
	logger       *logging.Logger
	newDriver    func() *driver.Driver
}

func (f *cacheFactory) Create(ctx context.Context) (*SessionCache, error) {
	d := f.newDriver()
	if err := d.Start(ctx, f.retries); err != nil {
		return nil, err
	}
	f.logger.Info("driver started", "driver_id", d.ID(), "endpoint", d.Endpoint(), "pid", d.Pid())
	return NewSessionCache(d, f.capabilities, f.reset, f.logger), nil
}

func (f *cacheFactory) Destroy(c *SessionCache) error {
	f.logger.Info("driver retired", "driver_id", c.Driver().ID(), "pid", c.Driver().Pid())
	return c.Close()
}

// BridgeController is a two-level pool for one bridge. The outer Controller
// bounds the number of driver processes; each driver's Concurrency bounds
// the sessions it hosts.
type BridgeController struct {
	bridge     bridge.Bridge
	controller *Controller[*SessionCache]
	logger     *logging.Logger
}

// NewBridgeController builds a controller that spawns drivers for b.
func NewBridgeController(b bridge.Bridge, cfg Config) *BridgeController {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithBridge(b.Name())

	factory := &cacheFactory{
		bridge:       b,
		capabilities: cfg.Capabilities,
		retries:      cfg.StartRetries,
		reset:        cfg.ResetPolicy,
		logger:       logger,
	}
	factory.newDriver = func() *driver.Driver {
		return b.NewDriver(logger)
	}
	if cfg.newDriver != nil {
		factory.newDriver = cfg.newDriver
	}

	return &BridgeController{
		bridge: b,
		controller: NewController[*SessionCache](factory,
			WithLimits(cfg.Minimum, cfg.Maximum),
			WithControllerLogger(logger),
		),
		logger: logger,
	}
}

// Acquire borrows a driver slot and takes a session from that driver's
// cache. If session creation fails the slot is returned, or the driver is
// retired when the failure shows it is unhealthy.
func (b *BridgeController) Acquire(ctx context.Context) (*Session, error) {
	cache, err := b.controller.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ws, err := cache.Acquire(ctx)
	if err != nil {
		if !cache.Viable() || webdriver.IsDriverUnhealthy(err) {
			b.logger.Warn("retiring driver after session failure", "driver_id", cache.Driver().ID(), "error", err)
			_ = b.controller.Retire(cache)
		} else {
			b.controller.Release(cache)
		}
		return nil, err
	}

	return newSession(ws, cache, b), nil
}

// Release returns s to its cache and the cache's slot to the pool. A reset
// failure that shows the driver is unhealthy retires the driver instead.
func (b *BridgeController) Release(ctx context.Context, s *Session) error {
	if !s.markDone() {
		return nil
	}
	err := s.cache.Release(ctx, s.desc)
	if webdriver.IsDriverUnhealthy(err) {
		_ = b.controller.Retire(s.cache)
		return err
	}
	b.controller.Release(s.cache)
	return err
}

// Retire discards s's cache and retires its driver. Other sessions on the
// same driver become unusable.
func (b *BridgeController) Retire(s *Session) error {
	if !s.markDone() {
		return nil
	}
	b.logger.WithSession(s.ID).Info("retiring session driver", "driver_id", s.cache.Driver().ID())
	return b.controller.Retire(s.cache)
}

// Prepare starts drivers until the configured minimum exist.
func (b *BridgeController) Prepare(ctx context.Context) error {
	return b.controller.Prepare(ctx)
}

// SetMaximum changes the bound on driver processes.
func (b *BridgeController) SetMaximum(n int) {
	b.controller.SetMaximum(n)
}

// Stats returns the outer controller's bookkeeping.
func (b *BridgeController) Stats() Stats {
	return b.controller.Stats()
}

// Close retires every driver.
func (b *BridgeController) Close(ctx context.Context) error {
	err := b.controller.Close(ctx)
	if err != nil && !errors.Is(err, errors.ErrProcessTermination) {
		return err
	}
	if err != nil {
		b.logger.Warn("driver termination reported errors", "error", err)
	}
	return nil
}
