package game

import "sync"

// Registry hands out the per-session execution slot. Locks are created on
// first access and live for the process lifetime; the map size is bounded
// by the number of sessions touched since startup.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Acquire returns the mutex serializing all state mutation for sessionID,
// creating it race-free on first use.
func (r *Registry) Acquire(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[sessionID] = mu
	}
	return mu
}

// Len reports how many session locks exist. Used by tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
