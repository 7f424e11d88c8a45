package pool

import (
	"context"
	"slices"
	"sync"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/logging"
	cpool "github.com/sourcegraph/conc/pool"
)

// Resource is something a Controller hands out. Concurrency is how many
// borrowers may hold it at once (0 = unbounded).
type Resource interface {
	comparable
	Concurrency() int
	Viable() bool
	Reusable() bool
}

// Factory creates and destroys resources for a Controller.
type Factory[R Resource] interface {
	Create(ctx context.Context) (R, error)
	Destroy(r R) error
}

// Stats is a snapshot of a Controller's bookkeeping.
type Stats struct {
	Outstanding int // resources that exist or are being created
	Idle        int
	InUse       int
	Creating    int
	Waiting     int
	Maximum     int
}

// Controller is a bounded, factory-backed pool.
//
// Acquire reuses a resource with spare capacity, creates one while fewer
// than maximum exist, and otherwise blocks until a Release or Retire frees
// capacity. A single mutex guards all state; waiters park on a sync.Cond.
//
// Ordering is relaxed: when capacity frees, some blocked caller proceeds,
// not necessarily the one that waited longest.
type Controller[R Resource] struct {
	factory Factory[R]
	logger  *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	minimum int
	maximum int // 0 = unbounded

	usage     map[R]int // 0 = idle, >0 = borrowers
	order     []R
	creating  int
	waiting   int
	closed    bool
	creations sync.WaitGroup
}

// ControllerOption configures a Controller.
type ControllerOption func(*controllerConfig)

type controllerConfig struct {
	minimum int
	maximum int
	logger  *logging.Logger
}

// WithLimits sets the minimum kept by Prepare and the maximum number of
// outstanding resources. A maximum of 0 is unbounded.
func WithLimits(minimum, maximum int) ControllerOption {
	return func(c *controllerConfig) {
		c.minimum = max(minimum, 0)
		c.maximum = max(maximum, 0)
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *logging.Logger) ControllerOption {
	return func(c *controllerConfig) {
		c.logger = logger
	}
}

// NewController returns a controller backed by factory.
func NewController[R Resource](factory Factory[R], opts ...ControllerOption) *Controller[R] {
	cfg := &controllerConfig{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	c := &Controller[R]{
		factory: factory,
		logger:  cfg.logger,
		minimum: cfg.minimum,
		maximum: cfg.maximum,
		usage:   make(map[R]int),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Acquire returns a resource with spare capacity, creating one if the pool
// is under its maximum and blocking otherwise. Idle resources that are no
// longer viable are retired on the way. It fails with *errors.PoolClosedError
// once Close has been called, or with the context's error.
func (c *Controller[R]) Acquire(ctx context.Context) (R, error) {
	var zero R

	c.mu.Lock()

	// Wake this waiter when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()

	var stale []R
	for {
		if c.closed {
			c.mu.Unlock()
			c.destroyAll(stale)
			return zero, errors.NewPoolClosedError("controller")
		}
		if err := ctx.Err(); err != nil {
			// Pass on a wakeup this caller may have consumed.
			c.cond.Signal()
			c.mu.Unlock()
			c.destroyAll(stale)
			return zero, err
		}

		if r, ok := c.availableLocked(&stale); ok {
			c.usage[r]++
			c.mu.Unlock()
			c.destroyAll(stale)
			return r, nil
		}

		if c.maximum == 0 || c.outstandingLocked() < c.maximum {
			c.creating++
			c.creations.Add(1)
			c.mu.Unlock()
			c.destroyAll(stale)
			return c.create(ctx, 1)
		}

		c.waiting++
		c.cond.Wait()
		c.waiting--
	}
}

// availableLocked returns the first viable resource with spare capacity.
// Idle resources that are not viable are removed and appended to stale.
func (c *Controller[R]) availableLocked(stale *[]R) (R, bool) {
	var zero R
	for i := 0; i < len(c.order); {
		r := c.order[i]
		n := c.usage[r]
		if !r.Viable() {
			if n == 0 {
				delete(c.usage, r)
				c.order = slices.Delete(c.order, i, i+1)
				*stale = append(*stale, r)
				continue
			}
			i++
			continue
		}
		if limit := r.Concurrency(); limit == 0 || n < limit {
			return r, true
		}
		i++
	}
	return zero, false
}

// create runs the factory outside the lock. The slot was reserved by the
// caller through c.creating.
func (c *Controller[R]) create(ctx context.Context, borrowers int) (R, error) {
	var zero R

	r, err := c.factory.Create(ctx)

	c.mu.Lock()
	c.creating--
	c.creations.Done()
	if err != nil {
		c.cond.Signal()
		c.mu.Unlock()
		c.logger.Warn("resource creation failed", "error", err)
		return zero, err
	}
	if c.closed {
		c.mu.Unlock()
		c.destroy(r)
		return zero, errors.NewPoolClosedError("controller")
	}
	c.usage[r] = borrowers
	c.order = append(c.order, r)
	if borrowers == 0 {
		c.cond.Signal()
	}
	c.mu.Unlock()

	c.logger.Debug("resource created", "outstanding", c.Stats().Outstanding)
	return r, nil
}

// Release returns one borrow of r. A resource that is no longer reusable or
// viable is retired once its last borrower releases it. Releasing a resource
// the controller does not hold is a no-op.
func (c *Controller[R]) Release(r R) {
	c.mu.Lock()
	n, ok := c.usage[r]
	if !ok || n == 0 {
		c.mu.Unlock()
		return
	}
	n--
	c.usage[r] = n

	if n == 0 && (!r.Reusable() || !r.Viable()) {
		c.removeLocked(r)
		c.cond.Signal()
		c.mu.Unlock()
		c.logger.Debug("retiring released resource that is no longer reusable")
		c.destroy(r)
		return
	}
	c.cond.Signal()
	c.mu.Unlock()
}

// Retire removes r from the pool and destroys it, freeing its capacity slot
// even if borrowers still hold it. Retiring an unknown resource is a no-op.
func (c *Controller[R]) Retire(r R) error {
	c.mu.Lock()
	if _, ok := c.usage[r]; !ok {
		c.mu.Unlock()
		return nil
	}
	c.removeLocked(r)
	c.cond.Signal()
	c.mu.Unlock()

	return c.factory.Destroy(r)
}

func (c *Controller[R]) removeLocked(r R) {
	delete(c.usage, r)
	if i := slices.Index(c.order, r); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// Prepare creates idle resources until at least minimum exist.
func (c *Controller[R]) Prepare(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return errors.NewPoolClosedError("controller")
		}
		if c.outstandingLocked() >= c.minimum ||
			(c.maximum > 0 && c.outstandingLocked() >= c.maximum) {
			c.mu.Unlock()
			return nil
		}
		c.creating++
		c.creations.Add(1)
		c.mu.Unlock()

		if _, err := c.create(ctx, 0); err != nil {
			return err
		}
	}
}

// SetMaximum changes the bound on outstanding resources. Lowering it does
// not destroy anything; excess resources drain as they are retired.
func (c *Controller[R]) SetMaximum(n int) {
	c.mu.Lock()
	c.maximum = max(n, 0)
	c.cond.Broadcast()
	c.mu.Unlock()
	c.logger.Info("pool maximum changed", "maximum", n)
}

// Stats returns a snapshot of the controller's state.
func (c *Controller[R]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Outstanding: c.outstandingLocked(),
		Creating:    c.creating,
		Waiting:     c.waiting,
		Maximum:     c.maximum,
	}
	for _, n := range c.usage {
		if n == 0 {
			s.Idle++
		} else {
			s.InUse++
		}
	}
	return s
}

func (c *Controller[R]) outstandingLocked() int {
	return len(c.usage) + c.creating
}

// Close wakes every blocked Acquire with *errors.PoolClosedError, waits for
// in-flight creations, then destroys every remaining resource concurrently,
// including ones still borrowed. It returns the joined destroy errors. Later
// calls return nil.
//
// If ctx ends before in-flight creations finish, Close stops waiting for
// them; each destroys its own resource when it completes.
func (c *Controller[R]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	created := make(chan struct{})
	go func() {
		c.creations.Wait()
		close(created)
	}()
	var waitErr error
	select {
	case <-created:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	c.mu.Lock()
	remaining := c.order
	c.order = nil
	c.usage = make(map[R]int)
	c.mu.Unlock()

	p := cpool.New().WithErrors()
	for _, r := range remaining {
		p.Go(func() error {
			return c.factory.Destroy(r)
		})
	}
	err := p.Wait()
	c.logger.Info("controller closed", "destroyed", len(remaining))
	return errors.Join(waitErr, err)
}

func (c *Controller[R]) destroy(r R) {
	if err := c.factory.Destroy(r); err != nil {
		c.logger.Warn("destroying resource failed", "error", err)
	}
}

func (c *Controller[R]) destroyAll(rs []R) {
	for _, r := range rs {
		c.destroy(r)
	}
}
