package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// ProfileRegistry tracks named scope->rights grant tables.
type ProfileRegistry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewProfileRegistry returns an empty registry.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{profiles: make(map[string]*Profile)}
}

// Create registers a new, empty Profile under name.
func (r *ProfileRegistry) Create(name string) (*Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.profiles[name]; exists {
		return nil, errors.Errorf("kernel: profile %q already exists", name)
	}
	p := &Profile{Name: name, Grants: make(map[string]Rights)}
	r.profiles[name] = p
	return p, nil
}

// Find returns the named profile, if registered.
func (r *ProfileRegistry) Find(name string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Grant sets scope's rights on a profile, replacing any prior grant.
func (r *ProfileRegistry) Grant(profileName, scope string, rights Rights) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[profileName]
	if !ok {
		return errors.Errorf("kernel: profile %q not found", profileName)
	}
	p.Grants[scope] = rights
	return nil
}

// Inherit copies every grant from parent into child additively: a scope
// already granted in child keeps the union of both rights sets, rather than
// being overwritten.
func (r *ProfileRegistry) Inherit(childName, parentName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	child, ok := r.profiles[childName]
	if !ok {
		return errors.Errorf("kernel: profile %q not found", childName)
	}
	parent, ok := r.profiles[parentName]
	if !ok {
		return errors.Errorf("kernel: profile %q not found", parentName)
	}
	for scope, rights := range parent.Grants {
		child.Grants[scope] = child.Grants[scope].Union(rights)
	}
	return nil
}
