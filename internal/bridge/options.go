package bridge

import (
	"time"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	path          string
	url           string
	concurrency   *int
	env           []string
	gracePeriod   time.Duration
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// WithPath sets the driver executable. Empty keeps the vendor default.
func WithPath(path string) Option {
	return func(c *config) {
		if path != "" {
			c.path = path
		}
	}
}

// WithURL sets the address of an externally managed remote end. Only the
// remote bridge uses it.
func WithURL(url string) Option {
	return func(c *config) {
		c.url = url
	}
}

// WithConcurrency overrides how many sessions one driver hosts at once.
// Zero means unbounded.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = &n
	}
}

// WithEnv sets the environment of spawned drivers.
func WithEnv(env []string) Option {
	return func(c *config) {
		c.env = env
	}
}

// WithGracePeriod sets how long a driver gets to exit after SIGINT.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		c.gracePeriod = d
	}
}

// WithRetryDelay sets the readiness-polling backoff step and its cap.
func WithRetryDelay(step, maxDelay time.Duration) Option {
	return func(c *config) {
		c.retryDelay = step
		c.maxRetryDelay = maxDelay
	}
}

func newConfig(path string, opts []Option) *config {
	cfg := &config{path: path}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) concurrencyOr(def int) int {
	if c.concurrency != nil {
		return max(*c.concurrency, 0)
	}
	return def
}
