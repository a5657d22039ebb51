package kernel

import (
	"strings"

	"github.com/pkg/errors"

	"submesh/internal/message"
)

// ErrAccessDenied is returned by CheckAccess whenever a channel or resource
// ACL rejects the caller. The caller-facing message never distinguishes
// which specific check failed.
var ErrAccessDenied = errors.New("access denied")

// AccessControl composes the principal, resource, channel and profile
// registries and decides whether a caller may reach a given path.
type AccessControl struct {
	Principals *PrincipalRegistry
	Resources  *ResourceRegistry
	Channels   *ChannelRegistry
	Profiles   *ProfileRegistry
}

// NewAccessControl wires a fresh set of registries together.
func NewAccessControl() *AccessControl {
	return &AccessControl{
		Principals: NewPrincipalRegistry(),
		Resources:  NewResourceRegistry(),
		Channels:   NewChannelRegistry(),
		Profiles:   NewProfileRegistry(),
	}
}

// RequiredRights derives the rights a message needs: read for queries,
// grant for explicit ACL edits (tagged via the "aclEdit" custom field),
// write for everything else.
func RequiredRights(env *message.Envelope) Rights {
	fixed := env.Fixed()
	if v, ok := fixed.Custom["aclEdit"]; ok {
		if b, ok := v.(bool); ok && b {
			return RightGrant
		}
	}
	if fixed.IsQuery {
		return RightRead
	}
	return RightWrite
}

// extractSubsystemName returns the scheme segment before "://", e.g.
// "canvas://layers/42" -> "canvas".
func extractSubsystemName(path string) string {
	idx := strings.Index(path, "://")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// extractResourceName takes the first path segment after the "scheme://"
// prefix as the resource name, e.g. "canvas://layers/42" -> "layers".
func extractResourceName(path string) string {
	idx := strings.Index(path, "://")
	if idx < 0 {
		return ""
	}
	rest := path[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return rest[:slash]
	}
	return rest
}

// CheckAccess enforces channel participation and resource ACL rules for a
// message path. A path matching neither a registered channel nor a
// registered resource is allowed through unchecked: the kernel only guards
// objects that were explicitly registered with it.
func (ac *AccessControl) CheckAccess(caller PKR, env *message.Envelope) error {
	if ch, ok := ac.Channels.Find(env.Path()); ok {
		if !ch.IsParticipant(caller) {
			return ErrAccessDenied
		}
		return nil
	}

	name := extractResourceName(env.Path())
	if res, ok := ac.Resources.FindByName(name); ok {
		required := RequiredRights(env)
		if !res.CheckRights(caller, required, string(env.Fixed().Type)) {
			return ErrAccessDenied
		}
		return nil
	}

	return nil
}
