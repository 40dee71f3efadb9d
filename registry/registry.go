// Package registry implements the id→entry map used by the server protocol
// engine (spec §4.5): O(1) add/get/remove, plus drain for bulk teardown on
// socket close. The client keeps its subscribers in its own ordered map
// and does not use this package.
package registry

import (
	"fmt"
	"sync"
)

// Registry maps an operation id to an entry of type T. It is single-writer
// per connection (spec §5), but the mutex makes it safe to drain from a
// different goroutine than the one processing inbound frames, as the
// server does from its operation goroutines and socket-close teardown.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[string]T
}

// New returns an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Add registers entry under id. It fails if id is already active, enforcing
// the id-uniqueness invariant of spec §3.
func (r *Registry[T]) Add(id string, entry T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return fmt.Errorf("id %q already exists", id)
	}
	r.entries[id] = entry
	return nil
}

// Get returns the entry for id, if active.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[id]
	return v, ok
}

// Remove deletes id if present; it is a no-op otherwise (spec §4.3:
// "unknown id on Complete is silently ignored").
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of active entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Drain returns and clears all entries, for socket-close / dispose-all
// teardown.
func (r *Registry[T]) Drain() map[string]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entries
	r.entries = make(map[string]T)
	return out
}

// Range calls fn for every active entry, in unspecified order. fn must not
// call back into the Registry (Add/Remove/Drain) — it is invoked under the
// registry's lock.
func (r *Registry[T]) Range(fn func(id string, entry T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		fn(id, entry)
	}
}
