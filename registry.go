package detpipe

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoBackend is returned when a locator scheme matches no registered
// backend
var ErrNoBackend = errors.New("no matching backend for scheme")

// Factory constructs a backend of type T from a parsed locator
type Factory[T any] func(loc *Locator) (T, error)

// Registry maps locator schemes to backend factories.  Exactly one factory
// may claim a scheme.  The input, output and model packages each hold one
// registry and register their compiled in backends at init time
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty backend registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		factories: make(map[string]Factory[T]),
	}
}

// Register adds a factory for the given scheme.  Registering a scheme twice
// is a programming error and panics, two backends must never compete for the
// same scheme
func (r *Registry[T]) Register(scheme string, f Factory[T]) {

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[scheme]; exists {
		panic(fmt.Sprintf("backend scheme %q registered twice", scheme))
	}

	r.factories[scheme] = f
}

// Schemes returns the sorted list of registered schemes, used in error
// messages and usage output
func (r *Registry[T]) Schemes() []string {

	r.mu.RLock()
	defer r.mu.RUnlock()

	schemes := make([]string, 0, len(r.factories))

	for s := range r.factories {
		schemes = append(schemes, s)
	}

	sort.Strings(schemes)

	return schemes
}

// Open parses the raw locator and constructs the backend registered for its
// scheme.  An unknown scheme returns ErrNoBackend, a failing factory returns
// that backend's own error unchanged so the caller can inspect it
func (r *Registry[T]) Open(rawLocator string) (T, error) {

	var zero T

	loc, err := ParseLocator(rawLocator)

	if err != nil {
		return zero, err
	}

	r.mu.RLock()
	factory, ok := r.factories[loc.Scheme]
	r.mu.RUnlock()

	if !ok {
		return zero, fmt.Errorf("%w: %q (registered: %v)", ErrNoBackend,
			loc.Scheme, r.Schemes())
	}

	return factory(loc)
}
