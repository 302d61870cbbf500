package livesync

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks the synchronizers of live dashboards by mount id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	sync *Synchronizer
	// idleSince is the creation time, then the time of the last Release.
	idleSince time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}, now: time.Now}
}

// Create builds a synchronizer from cfg and registers it. An empty cfg.ID is
// replaced with a fresh uuid.
func (r *Registry) Create(cfg Config) *Synchronizer {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	s := New(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[cfg.ID]; ok {
		old.sync.Unmount()
	}
	r.entries[cfg.ID] = &entry{sync: s, idleSince: r.now()}
	return s
}

// Get returns the synchronizer registered under id.
func (r *Registry) Get(id string) (*Synchronizer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.sync, true
}

// Remove unmounts and forgets id. Unknown ids are ignored.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.sync.Unmount()
}

// Release unmounts id but keeps it registered, so a browser whose socket
// dropped can reconnect to the same list. Unknown ids are ignored.
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		e.idleSince = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.sync.Unmount()
}

// Len is the number of registered synchronizers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reap removes synchronizers that have been unmounted for longer than
// maxAge: pages whose browser socket never connected or went away for good.
func (r *Registry) Reap(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	var stale []string
	for id, e := range r.entries {
		if !e.sync.Mounted() && e.idleSince.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	return len(stale)
}

// Close unmounts every synchronizer and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*entry{}
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		errs = append(errs, e.sync.Unmount())
	}
	return errors.Join(errs...)
}
