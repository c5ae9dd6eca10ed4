package store

import (
	"context"
	"errors"
	"sync"
)

// Factory builds a backend for one (mode, tenant) pair.
type Factory func(ctx context.Context, mode Mode, uid int64) (Store, error)

// Registry caches one backend instance per (mode, tenant). It replaces the
// usual process-global store variable with an object the host owns, so
// lifetime and invalidation are explicit.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	stores  map[registryKey]Store
}

type registryKey struct {
	mode Mode
	uid  int64
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		stores:  make(map[registryKey]Store),
	}
}

// Get returns the cached backend for (mode, uid), building it on first use.
func (r *Registry) Get(ctx context.Context, mode Mode, uid int64) (Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{mode: mode, uid: uid}
	if s, ok := r.stores[key]; ok {
		return s, nil
	}
	s, err := r.factory(ctx, mode, uid)
	if err != nil {
		return nil, err
	}
	r.stores[key] = s
	return s, nil
}

// Invalidate closes and forgets the backend for (mode, uid), if cached.
// The next Get rebuilds it. Used on logout and on mode switches.
func (r *Registry) Invalidate(mode Mode, uid int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{mode: mode, uid: uid}
	s, ok := r.stores[key]
	if !ok {
		return nil
	}
	delete(r.stores, key)
	return s.Close()
}

// Close closes every cached backend and empties the cache.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, s := range r.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.stores, key)
	}
	return errors.Join(errs...)
}
