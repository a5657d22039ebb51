package kernel

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"submesh/internal/errs"
	"submesh/internal/facet"
	"submesh/internal/listener"
	"submesh/internal/message"
	"submesh/internal/requests"
	"submesh/internal/router"
	"submesh/internal/subsystem"
)

// Name is the reserved subsystem name the root router forwards kernel://
// paths to, synchronously, ahead of any registry lookup.
const Name = "kernel"

// Config controls kernel construction.
type Config struct {
	ErrorManagerMaxSize int
}

// Kernel is the privileged subsystem: it owns the principal/resource/
// channel/profile registries, the response overlay, and the error manager,
// and mediates every protected call via SendProtected. Its own kernel://
// routes are processed synchronously, ahead of ordinary subsystems.
type Kernel struct {
	AccessControl *AccessControl
	Errors        *errs.Manager
	Responses     *requests.Overlay

	SelfPrincipal Principal
	SelfPKR       PKR

	mu            sync.RWMutex
	subsystemPKRs map[string]PKR // subsystem name -> its issued PKR
	friendsByName map[string]PKR

	sub *subsystem.Subsystem
}

// QueueInfo is the read-only view of a subsystem's mailbox the scheduler
// needs for load-based and adaptive strategies, satisfied structurally by
// *queue.BoundedQueue[*message.Envelope] without this package importing it.
type QueueInfo interface {
	Len() int
	Capacity() int
}

// Wrapper is the narrowed surface returned from RegisterSubsystem: the
// kernel and coordinator drive the subsystem's lifecycle, listeners and
// mailbox depth through the methods below. Unwrap returns the underlying
// subsystem itself.
type Wrapper struct {
	sub *subsystem.Subsystem
}

func (w *Wrapper) Accept(env *message.Envelope, opts map[string]any) subsystem.AcceptResult {
	return w.sub.Accept(env, opts)
}
func (w *Wrapper) Process(timeSliceMs int)       { w.sub.Process(timeSliceMs) }
func (w *Wrapper) Pause() error                  { return w.sub.Pause() }
func (w *Wrapper) Resume() error                 { return w.sub.Resume() }
func (w *Wrapper) Dispose() error                { return w.sub.Dispose() }
func (w *Wrapper) GetNameString() string         { return w.sub.Name }
func (w *Wrapper) Listeners() *listener.Listener { return w.sub.Listener() }
func (w *Wrapper) Queue() QueueInfo              { return w.sub.Queue() }
func (w *Wrapper) State() subsystem.State        { return w.sub.State() }
func (w *Wrapper) Unwrap() *subsystem.Subsystem  { return w.sub }

// New constructs a Kernel with its own synchronous internal subsystem and
// registers its built-in kernel:// introspection routes.
func New(cfg Config) *Kernel {
	ac := NewAccessControl()
	principal, pkr := ac.Principals.Register(KindKernel, 0)

	k := &Kernel{
		AccessControl: ac,
		Errors:        errs.NewManager(cfg.ErrorManagerMaxSize),
		Responses:     requests.New(),
		SelfPrincipal: principal,
		SelfPKR:       pkr,
		subsystemPKRs: make(map[string]PKR),
		friendsByName: make(map[string]PKR),
	}
	k.sub = subsystem.New(subsystem.Config{
		Name:          Name,
		Disposition:   subsystem.Synchronous,
		QueueCapacity: 64,
		ErrorSink:     k.Errors,
	})
	k.registerRoutes()
	// The kernel's own facet build never fails: no hooks are registered.
	_ = k.sub.Build(&facet.BuildContext{SubsystemName: Name})
	return k
}

func (k *Kernel) registerRoutes() {
	router := k.sub.Router()
	_ = router.RegisterRoute("kernel://query/errors/recent", func(params map[string]string) (any, error) {
		return k.Errors.All(), nil
	}, nil, false)
	_ = router.RegisterRoute("kernel://query/principals/{id}", func(params map[string]string) (any, error) {
		p, ok := k.AccessControl.Principals.Lookup(params["id"])
		if !ok {
			return nil, errors.Errorf("kernel: no principal %q", params["id"])
		}
		return p, nil
	}, nil, false)
}

// Accept forwards a kernel:// message to the kernel's own synchronous
// pipeline; the root router calls this directly rather than going through
// the registry.
func (k *Kernel) Accept(env *message.Envelope, opts map[string]any) subsystem.AcceptResult {
	return k.sub.Accept(env, opts)
}

// Router exposes the kernel's own router so bootstrap code may register
// additional kernel:// routes before the coordinator starts.
func (k *Kernel) Router() *router.Router { return k.sub.Router() }

// RegisterSubsystem mints a subsystem principal, attaches its PKR-backed
// identity, and returns a narrowed Wrapper. ttl <= 0 means the issued PKR
// never expires.
func (k *Kernel) RegisterSubsystem(sub *subsystem.Subsystem, ttl time.Duration) *Wrapper {
	principal, pkr := k.AccessControl.Principals.Register(KindSubsystem, ttl)
	sub.SetIdentity(subsystem.Identity{PrincipalID: principal.UUID, PKR: pkr.UUID})

	k.mu.Lock()
	k.subsystemPKRs[sub.Name] = pkr
	k.mu.Unlock()

	return &Wrapper{sub: sub}
}

// PKRFor returns the PKR issued when name was registered via
// RegisterSubsystem.
func (k *Kernel) PKRFor(name string) (PKR, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pkr, ok := k.subsystemPKRs[name]
	return pkr, ok
}

// CreateFriend mints a disconnected friend principal under a human-readable
// name, for external collaborators (e.g. a WebSocket session) that need a
// PKR without owning a subsystem.
func (k *Kernel) CreateFriend(name string, ttl time.Duration) PKR {
	_, pkr := k.AccessControl.Principals.Register(KindFriend, ttl)
	k.mu.Lock()
	k.friendsByName[name] = pkr
	k.mu.Unlock()
	return pkr
}

// FriendPKR looks up a previously created friend's PKR by name.
func (k *Kernel) FriendPKR(name string) (PKR, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	pkr, ok := k.friendsByName[name]
	return pkr, ok
}

// Connect/Disconnect toggle a friend principal's Connected flag.
func (k *Kernel) Connect(pkr PKR)    { k.AccessControl.Principals.SetConnected(pkr.UUID, true) }
func (k *Kernel) Disconnect(pkr PKR) { k.AccessControl.Principals.SetConnected(pkr.UUID, false) }

// CreateResource registers a new owned, ACL-guarded resource.
func (k *Kernel) CreateResource(owner PKR, name string, instance any, meta map[string]any) (*Resource, error) {
	return k.AccessControl.Resources.Create(owner, name, instance, meta)
}

// GrantResource assigns rights over res to grantee. Callers must have
// already verified the granter holds RightGrant.
func (k *Kernel) GrantResource(res *Resource, grantee PKR, rights Rights) {
	k.AccessControl.Resources.Grant(res, grantee, rights)
}

// CreateChannel registers a new routed channel.
func (k *Kernel) CreateChannel(route string, owner PKR, participants []PKR, meta map[string]any) (*Channel, error) {
	return k.AccessControl.Channels.Create(route, owner, participants, meta)
}

// JoinChannel adds pkr as a participant on an existing channel.
func (k *Kernel) JoinChannel(route string, pkr PKR) error {
	return k.AccessControl.Channels.Join(route, pkr)
}

// CreateProfile registers a new, empty named grant profile.
func (k *Kernel) CreateProfile(name string) (*Profile, error) {
	return k.AccessControl.Profiles.Create(name)
}

// GrantProfile sets scope's rights on a profile.
func (k *Kernel) GrantProfile(profileName, scope string, rights Rights) error {
	return k.AccessControl.Profiles.Grant(profileName, scope, rights)
}
