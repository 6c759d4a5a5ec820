package store

import "sync"

// MutexRegistry hands out one mutex per claim id, created lazily on first
// access and kept for the process lifetime. The claim set is bounded by
// durable storage, so the registry never needs eviction.
type MutexRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutexRegistry returns an empty registry.
func NewMutexRegistry() *MutexRegistry {
	return &MutexRegistry{locks: map[string]*sync.Mutex{}}
}

// Get returns the mutex for the given claim id, creating it if needed.
func (r *MutexRegistry) Get(claimID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[claimID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[claimID] = m
	}
	return m
}
