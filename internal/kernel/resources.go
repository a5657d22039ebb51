package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// ResourceRegistry tracks resources, each named uniquely per owner.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]*Resource // key: owner uuid + "/" + name
}

// NewResourceRegistry returns an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]*Resource)}
}

func resourceKey(owner PKR, name string) string { return owner.UUID + "/" + name }

// Create registers a new resource. Returns an error if owner already has a
// resource with this name.
func (r *ResourceRegistry) Create(owner PKR, name string, instance any, meta map[string]any) (*Resource, error) {
	key := resourceKey(owner, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[key]; exists {
		return nil, errors.Errorf("kernel: resource %q already exists for owner %s", name, owner.UUID)
	}
	res := &Resource{
		Name:      name,
		OwnerPKR:  owner,
		Instance:  instance,
		Metadata:  meta,
		ACL:       NewReaderWriterSet(),
		ScopedACL: make(map[string]*ReaderWriterSet),
	}
	r.resources[key] = res
	return res, nil
}

// Find looks up a resource by owner and name.
func (r *ResourceRegistry) Find(owner PKR, name string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[resourceKey(owner, name)]
	return res, ok
}

// FindByName scans every registered resource for a matching name,
// regardless of owner. Used when a path names a resource without the
// caller knowing its owner up front.
func (r *ResourceRegistry) FindByName(name string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.resources {
		if res.Name == name {
			return res, true
		}
	}
	return nil, false
}

// Grant assigns rights over a resource to a grantee PKR. Callers are
// responsible for having already verified the granter holds RightGrant.
func (r *ResourceRegistry) Grant(res *Resource, grantee PKR, rights Rights) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ACL.Grant(grantee, rights)
}

// GrantScoped assigns rights over a resource to a grantee PKR, restricted to
// a single message type tag (e.g. "query", "command").
func (r *ResourceRegistry) GrantScoped(res *Resource, grantee PKR, msgType string, rights Rights) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ScopedACL == nil {
		res.ScopedACL = make(map[string]*ReaderWriterSet)
	}
	set, ok := res.ScopedACL[msgType]
	if !ok {
		set = NewReaderWriterSet()
		res.ScopedACL[msgType] = set
	}
	set.Grant(grantee, rights)
}
