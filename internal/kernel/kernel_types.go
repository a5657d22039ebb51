// Package kernel implements the capability-checked core: principal/PKR
// issuance, resource and channel ACLs, profile-based rights grants, and the
// sendProtected dispatch algorithm.
package kernel

import "time"

// Rights is a bitset subset of {read, write, grant}.
type Rights uint8

const (
	RightRead Rights = 1 << iota
	RightWrite
	RightGrant
)

// Has reports whether r contains every bit set in want.
func (r Rights) Has(want Rights) bool { return r&want == want }

// Union combines two rights sets.
func (r Rights) Union(other Rights) Rights { return r | other }

// PrincipalKind classifies what a Principal represents.
type PrincipalKind string

const (
	KindKernel    PrincipalKind = "kernel"
	KindSubsystem PrincipalKind = "subsystem"
	KindFriend    PrincipalKind = "friend"
	KindResource  PrincipalKind = "resource"
)

// Principal is a registered identity. UUID is globally unique within the
// kernel instance.
type Principal struct {
	UUID      string
	Kind      PrincipalKind
	Connected bool // meaningful for KindFriend
}

// PKR (Public Key Record) is an immutable handle issued for a Principal.
// Equality is defined by UUID alone.
type PKR struct {
	UUID      string
	Kind      PrincipalKind
	ExpiresAt time.Time
}

// Expired reports whether the PKR's expiry has passed. A zero ExpiresAt
// means "never expires".
func (p PKR) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Equal reports whether two PKRs identify the same principal, by UUID alone.
func (p PKR) Equal(other PKR) bool { return p.UUID == other.UUID }

// ReaderWriterSet maps a PKR's UUID to its rights over some owned object.
// The owner is never stored here; callers must special-case "owner always
// permitted" themselves (see Resource.CheckRights).
type ReaderWriterSet struct {
	entries map[string]Rights
}

// NewReaderWriterSet returns an empty set.
func NewReaderWriterSet() *ReaderWriterSet {
	return &ReaderWriterSet{entries: make(map[string]Rights)}
}

// Grant sets pkr's rights, replacing any prior grant.
func (s *ReaderWriterSet) Grant(pkr PKR, rights Rights) {
	s.entries[pkr.UUID] = rights
}

// Revoke removes pkr's entry entirely.
func (s *ReaderWriterSet) Revoke(pkr PKR) {
	delete(s.entries, pkr.UUID)
}

// RightsOf returns the rights recorded for pkr, or 0 if absent.
func (s *ReaderWriterSet) RightsOf(pkr PKR) Rights {
	return s.entries[pkr.UUID]
}

// Resource is a named, owned object guarded by a ReaderWriterSet ACL.
// ScopedACL optionally narrows a grant to specific message type tags (the
// fixed meta `type` values, e.g. "query", "command"); a grantee present only
// in a scoped set is checked against the message's own type before falling
// back to the unscoped ACL.
type Resource struct {
	Name      string
	OwnerPKR  PKR
	Instance  any
	Metadata  map[string]any
	ACL       *ReaderWriterSet
	ScopedACL map[string]*ReaderWriterSet // message type -> ACL
}

// CheckRights reports whether pkr has at least `required` over the
// resource for a message of the given type; the owner always passes
// regardless of ACL contents. When a scoped ACL exists for msgType it takes
// precedence over the unscoped ACL for that type only.
func (r *Resource) CheckRights(pkr PKR, required Rights, msgType string) bool {
	if r.OwnerPKR.Equal(pkr) {
		return true
	}
	if set, ok := r.ScopedACL[msgType]; ok {
		return set.RightsOf(pkr).Has(required)
	}
	return r.ACL.RightsOf(pkr).Has(required)
}

// Channel is a named route with an owner and a participant set; only the
// owner and participants may send or receive on it.
type Channel struct {
	Route        string
	OwnerPKR     PKR
	Participants map[string]PKR // keyed by PKR UUID
	Metadata     map[string]any
}

// IsParticipant reports whether pkr is the owner or a listed participant.
func (c *Channel) IsParticipant(pkr PKR) bool {
	if c.OwnerPKR.Equal(pkr) {
		return true
	}
	_, ok := c.Participants[pkr.UUID]
	return ok
}

// Profile is a named scope -> rights grant table, used for bulk rights
// assignment independent of any single resource's ACL.
type Profile struct {
	Name   string
	Grants map[string]Rights // scope -> rights
}

// RightsFor returns the rights granted for scope, or 0 if ungranted.
func (p *Profile) RightsFor(scope string) Rights {
	return p.Grants[scope]
}
