package pool

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/wdpool/internal/driver"
	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
	"github.com/Iron-Ham/wdpool/internal/webdriver"
)

// sessionCloseTimeout bounds deleting idle remote sessions when a cache
// closes.
const sessionCloseTimeout = 2 * time.Second

// SessionCache owns one Driver and the sessions idling on it. It is the
// resource a BridgeController pools: borrowing the cache from the
// controller reserves one of the driver's session slots, and the cache then
// supplies a session for that slot.
type SessionCache struct {
	driver       *driver.Driver
	client       *webdriver.Client
	capabilities []byte
	reset        ResetPolicy
	logger       *logging.Logger

	mu     sync.Mutex
	idle   []*webdriver.Session
	closed bool
}

// NewSessionCache wraps a started driver.
func NewSessionCache(d *driver.Driver, capabilities []byte, reset ResetPolicy, logger *logging.Logger) *SessionCache {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if reset == "" {
		reset = ResetNone
	}
	return &SessionCache{
		driver:       d,
		client:       d.Client(),
		capabilities: capabilities,
		reset:        reset,
		logger:       logger.WithDriver(d.ID()),
	}
}

// Driver returns the driver backing the cache.
func (c *SessionCache) Driver() *driver.Driver {
	return c.driver
}

// Concurrency implements Resource.
func (c *SessionCache) Concurrency() int {
	return c.driver.Concurrency()
}

// Viable implements Resource.
func (c *SessionCache) Viable() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return !closed && c.driver.Viable()
}

// Reusable implements Resource.
func (c *SessionCache) Reusable() bool {
	return c.driver.Reusable()
}

// Idle returns the number of idle sessions.
func (c *SessionCache) Idle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle)
}

// Acquire pops the most recently released idle session, or creates one with
// POST /session. Creation failures are returned as
// *errors.SessionCreationError carrying the remote end's error code.
func (c *SessionCache) Acquire(ctx context.Context) (*webdriver.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.ErrDriverClosed
	}
	if n := len(c.idle); n > 0 {
		s := c.idle[n-1]
		c.idle[n-1] = nil
		c.idle = c.idle[:n-1]
		c.mu.Unlock()
		c.logger.WithSession(s.ID).Debug("reusing idle session")
		return s, nil
	}
	c.mu.Unlock()

	s, err := c.client.NewSession(ctx, c.capabilities)
	if err != nil {
		return nil, sessionCreationError(err, c.client.BaseURL())
	}
	c.logger.WithSession(s.ID).Info("session created")
	return s, nil
}

func sessionCreationError(err error, endpoint string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var perr *webdriver.ProtocolError
	if errors.As(err, &perr) {
		return errors.NewSessionCreationError(perr.Code, perr.Message).
			WithCause(err).
			WithEndpoint(endpoint)
	}
	return errors.NewSessionCreationError("", err.Error()).
		WithCause(err).
		WithEndpoint(endpoint)
}

// Release returns s to the idle list. Under ResetBlank the session is reset
// first; if that fails the session is deleted and dropped, and the reset
// error is returned. Sessions released to a closed or full cache are
// dropped, and deleted when the remote end is externally managed.
func (c *SessionCache) Release(ctx context.Context, s *webdriver.Session) error {
	if c.reset == ResetBlank {
		if err := s.Reset(ctx); err != nil {
			c.logger.WithSession(s.ID).Warn("session reset failed, discarding", "error", err)
			if !webdriver.IsDriverUnhealthy(err) {
				_ = s.Close(ctx)
			}
			return err
		}
	}

	c.mu.Lock()
	limit := c.driver.Concurrency()
	if c.closed || (limit > 0 && len(c.idle) >= limit) {
		c.mu.Unlock()
		if c.driver.Pid() == 0 {
			_ = s.Close(ctx)
		}
		return nil
	}
	c.idle = append(c.idle, s)
	c.mu.Unlock()
	return nil
}

// Close discards idle sessions and closes the driver. Sessions on a spawned
// driver end with its process; on an externally managed remote end they are
// deleted first.
func (c *SessionCache) Close() error {
	c.mu.Lock()
	c.closed = true
	idle := c.idle
	c.idle = nil
	c.mu.Unlock()

	if len(idle) > 0 && c.driver.Pid() == 0 && c.driver.Viable() {
		ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		for _, s := range idle {
			if err := s.Close(ctx); err != nil {
				c.logger.WithSession(s.ID).Debug("deleting idle session failed", "error", err)
			}
		}
		cancel()
	}
	return c.driver.Close()
}
