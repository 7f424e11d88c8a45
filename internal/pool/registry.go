package pool

import (
	"context"
	"sync"

	"github.com/Iron-Ham/wdpool/internal/errors"
)

// Cache holds one started Pool per bridge name, for test harnesses that ask
// for browsers by name.
type Cache struct {
	newPool func(name string) (*Pool, error)

	mu      sync.Mutex
	entries map[string]*cacheEntry
	closed  bool
}

// cacheEntry is a pool that is starting or started. ready is closed once
// pool or err is set.
type cacheEntry struct {
	ready chan struct{}
	pool  *Pool
	err   error
}

// NewCache returns a cache that builds pools with newPool.
func NewCache(newPool func(name string) (*Pool, error)) *Cache {
	return &Cache{
		newPool: newPool,
		entries: make(map[string]*cacheEntry),
	}
}

// For returns the pool for name, creating and starting it on first use.
// Starting happens outside the cache lock; concurrent callers for the same
// name wait for the first one. A failed start is not cached.
func (c *Cache) For(ctx context.Context, name string) (*Pool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.NewPoolClosedError("cache")
	}
	if e, ok := c.entries[name]; ok {
		c.mu.Unlock()
		select {
		case <-e.ready:
			return e.pool, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[name] = e
	c.mu.Unlock()

	p, err := c.start(ctx, name)

	c.mu.Lock()
	closed := c.closed
	if err != nil || closed {
		delete(c.entries, name)
	}
	if err == nil && closed {
		c.mu.Unlock()
		_ = p.Close(ctx)
		p, err = nil, errors.NewPoolClosedError("cache")
	} else {
		c.mu.Unlock()
	}

	e.pool, e.err = p, err
	close(e.ready)
	return p, err
}

func (c *Cache) start(ctx context.Context, name string) (*Pool, error) {
	p, err := c.newPool(name)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return p, nil
}

// Get returns the started pool for name without creating one.
func (c *Cache) Get(name string) (*Pool, bool) {
	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.pool, e.err == nil
	default:
		return nil, false
	}
}

// Close closes every started pool and returns their joined errors. Pools
// still starting are closed by the For call starting them.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	var errs []error
	for _, e := range entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.pool == nil {
			continue
		}
		if err := e.pool.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
