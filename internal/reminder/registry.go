package reminder

import (
	"sync"
	"time"
)

// Registry maps reminder ids to live timer handles. It exists only for the
// current process lifetime: entries are a cache of "a timer is armed for
// this id", never the record of record (that is always the store). It is
// rebuilt from persisted state at startup, never the reverse.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registryEntry
}

type registryEntry struct {
	timer  *time.Timer
	fireAt time.Time
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]registryEntry{}}
}

// Set registers a live timer for id, replacing (and stopping) any previous one.
func (r *Registry) Set(id string, t *time.Timer, fireAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[id]; ok {
		prev.timer.Stop()
	}
	r.entries[id] = registryEntry{timer: t, fireAt: fireAt}
}

// Cancel stops the underlying timer if present and removes the entry.
// Calling it with an unknown id is a no-op, not an error.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, id)
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// FireAt returns the target fire time for an armed id.
func (r *Registry) FireAt(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e.fireAt, ok
}

func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelAll stops every armed timer. Used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, id)
	}
}
