// Package coordinator composes the registry, root router, global scheduler
// and kernel into the stable boundary API: bootstrap, registerSubsystem,
// send, listenerOn/Off, startScheduler/stopScheduler.
package coordinator

import (
	"sync"

	"github.com/pkg/errors"

	"submesh/internal/kernel"
)

// Registry maps subsystem name -> its kernel-issued Wrapper, in
// registration order. The kernel itself is never stored here: it is routed
// to directly by name ("kernel") before any registry lookup, which keeps
// it out of generic enumeration.
type Registry struct {
	mu    sync.RWMutex
	subs  map[string]*kernel.Wrapper
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*kernel.Wrapper)}
}

// Register adds name -> w. Returns an error if name is already registered.
func (r *Registry) Register(name string, w *kernel.Wrapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subs[name]; exists {
		return errors.Errorf("coordinator: subsystem %q already registered", name)
	}
	r.subs[name] = w
	r.order = append(r.order, name)
	return nil
}

// Find looks up a registered subsystem's wrapper by name.
func (r *Registry) Find(name string) (*kernel.Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.subs[name]
	return w, ok
}

// Names returns every registered subsystem name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ReverseNames returns registration order reversed, so dispose can tear
// subsystems down in reverse registration order.
func (r *Registry) ReverseNames() []string {
	names := r.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}
