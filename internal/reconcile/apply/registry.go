package apply

import (
	"sync"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Registry maps identities to remote ids during a run. It is seeded from the
// current state and learns the ids assigned by Create calls, so later
// operations can bind references to entities created earlier in the run.
type Registry struct {
	mu  sync.RWMutex
	ids map[entity.Ref]string
}

// NewRegistry seeds a registry with the remote ids of the current state.
func NewRegistry(current *entity.Collection) *Registry {
	r := &Registry{ids: make(map[entity.Ref]string)}
	if current == nil {
		return r
	}
	for _, ref := range current.Refs() {
		e, _ := current.Get(ref)
		if id := e.RemoteID(); id != "" {
			r.ids[ref] = id
		}
	}
	return r
}

// RemoteID implements entity.Resolver.
func (r *Registry) RemoteID(ref entity.Ref) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[ref]
	return id, ok
}

// Set records the remote id of an identity
func (r *Registry) Set(ref entity.Ref, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[ref] = id
}

// Remove forgets an identity
func (r *Registry) Remove(ref entity.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, ref)
}
