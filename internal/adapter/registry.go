package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps adapter ids to implementations. It is populated by an
// explicit registration step at startup; a lookup for an unregistered id is
// a hard error because a scrape job referencing a missing adapter indicates
// a deployment or configuration bug, not a condition to skip silently.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]SiteAdapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]SiteAdapter)}
}

// Register adds an adapter under its id. Registering the same id twice is an
// error; two adapters claiming one id is always a bug.
func (r *Registry) Register(a SiteAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if id == "" {
		return fmt.Errorf("adapter registry: empty adapter id (%T)", a)
	}

	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("adapter registry: duplicate adapter id %q", id)
	}

	r.adapters[id] = a

	return nil
}

// MustRegister registers an adapter and panics on error. For use from
// startup wiring where a registration failure is unrecoverable.
func (r *Registry) MustRegister(a SiteAdapter) {
	if err := r.Register(a); err != nil {
		panic(err)
	}
}

// Get returns the adapter registered under id.
func (r *Registry) Get(id string) (SiteAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("adapter registry: no adapter registered for id %q (registered: %v)",
			id, r.idsLocked())
	}

	return a, nil
}

// IDs returns the registered adapter ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
