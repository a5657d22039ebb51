package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// ChannelRegistry tracks named channel routes and their participant sets.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel // route -> Channel
}

// NewChannelRegistry returns an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{channels: make(map[string]*Channel)}
}

// Create registers a new channel at route. Returns an error if route is
// already registered.
func (r *ChannelRegistry) Create(route string, owner PKR, participants []PKR, meta map[string]any) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[route]; exists {
		return nil, errors.Errorf("kernel: channel route %q already registered", route)
	}

	set := make(map[string]PKR, len(participants))
	for _, p := range participants {
		set[p.UUID] = p
	}
	ch := &Channel{Route: route, OwnerPKR: owner, Participants: set, Metadata: meta}
	r.channels[route] = ch
	return ch, nil
}

// Find returns the channel registered at route, if any.
func (r *ChannelRegistry) Find(route string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[route]
	return ch, ok
}

// Join adds pkr as a participant on an existing channel.
func (r *ChannelRegistry) Join(route string, pkr PKR) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[route]
	if !ok {
		return errors.Errorf("kernel: no channel at route %q", route)
	}
	ch.Participants[pkr.UUID] = pkr
	return nil
}
