package kernel

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PrincipalRegistry tracks every issued Principal/PKR pair.
type PrincipalRegistry struct {
	mu         sync.RWMutex
	principals map[string]Principal // uuid -> Principal
	pkrs       map[string]PKR       // uuid -> most recently issued PKR
}

// NewPrincipalRegistry returns an empty registry.
func NewPrincipalRegistry() *PrincipalRegistry {
	return &PrincipalRegistry{
		principals: make(map[string]Principal),
		pkrs:       make(map[string]PKR),
	}
}

// Register mints a new Principal of kind and issues its PKR. ttl <= 0 means
// the PKR never expires.
func (r *PrincipalRegistry) Register(kind PrincipalKind, ttl time.Duration) (Principal, PKR) {
	id := uuid.NewString()
	p := Principal{UUID: id, Kind: kind}

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	pkr := PKR{UUID: id, Kind: kind, ExpiresAt: expires}

	r.mu.Lock()
	r.principals[id] = p
	r.pkrs[id] = pkr
	r.mu.Unlock()

	return p, pkr
}

// Lookup returns the Principal for a UUID, if registered.
func (r *PrincipalRegistry) Lookup(id string) (Principal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	return p, ok
}

// IsValid reports whether pkr corresponds to a currently registered,
// unexpired principal whose issued PKR matches.
func (r *PrincipalRegistry) IsValid(pkr PKR) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, known := r.principals[pkr.UUID]
	if !known {
		return false
	}
	if pkr.Expired(time.Now()) {
		return false
	}
	return true
}

// SetConnected updates the Connected flag on a friend principal.
func (r *PrincipalRegistry) SetConnected(id string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return
	}
	p.Connected = connected
	r.principals[id] = p
}
