package bridge

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Iron-Ham/wdpool/internal/errors"
)

// EnvBridge names the environment variable that selects a bridge.
const EnvBridge = "WDPOOL_BRIDGE"

// Constructor builds a bridge from options.
type Constructor func(opts ...Option) Bridge

// Registry maps bridge names to constructors. Iteration follows
// registration order.
type Registry struct {
	mu    sync.RWMutex
	names []string
	ctors map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// DefaultRegistry returns a registry holding chrome, firefox, safari and
// remote, in that order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("chrome", Chrome)
	r.Register("firefox", Firefox)
	r.Register("safari", Safari)
	r.Register("remote", func(opts ...Option) Bridge { return Remote("", opts...) })
	return r
}

// Register adds or replaces a constructor. Replacing keeps the original
// position.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ctors[name]; !ok {
		r.names = append(r.names, name)
	}
	r.ctors[name] = ctor
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// New constructs the named bridge.
func (r *Registry) New(name string, opts ...Option) (Bridge, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", errors.ErrUnsupportedBridge, name, r.Names())
	}
	return ctor(opts...), nil
}

// Default returns the bridge named by name when it is non-empty, otherwise
// the first registered bridge whose driver is installed. optsFor, if set,
// supplies the options for each candidate by name.
func (r *Registry) Default(ctx context.Context, name string, optsFor func(name string) []Option) (Bridge, error) {
	build := func(n string) (Bridge, error) {
		var opts []Option
		if optsFor != nil {
			opts = optsFor(n)
		}
		return r.New(n, opts...)
	}

	if name != "" {
		return build(name)
	}
	for _, n := range r.Names() {
		b, err := build(n)
		if err != nil {
			continue
		}
		if Supported(ctx, b) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no installed driver among %v", errors.ErrUnsupportedBridge, r.Names())
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
