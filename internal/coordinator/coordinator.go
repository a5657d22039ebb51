package coordinator

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"submesh/internal/config"
	"submesh/internal/errs"
	"submesh/internal/facet"
	"submesh/internal/kernel"
	"submesh/internal/listener"
	"submesh/internal/logger"
	"submesh/internal/message"
	"submesh/internal/metrics"
	"submesh/internal/subsystem"
)

// Coordinator is the root object: it composes the registry, root router,
// global scheduler and kernel, and exposes the stable boundary API
// (bootstrap, registerSubsystem, send, listenerOn/Off,
// startScheduler/stopScheduler).
type Coordinator struct {
	mu     sync.Mutex
	booted bool

	Config    config.Configuration
	Factory   *message.Factory
	Kernel    *kernel.Kernel
	Registry  *Registry
	Router    *RootRouter
	Scheduler *Scheduler
	Metrics   *metrics.Registry
	Log       *logger.Logger

	contracts facet.ContractRegistry
}

// New constructs an unbootstrapped Coordinator. contracts may be nil.
func New(cfg config.Configuration, contracts facet.ContractRegistry) *Coordinator {
	level := logger.INFO
	if cfg.Debug {
		level = logger.DEBUG
	}
	return &Coordinator{
		Config:    cfg,
		Factory:   message.NewFactory(),
		Registry:  NewRegistry(),
		Metrics:   metrics.New(),
		Log:       logger.NewLogger("coordinator", level),
		contracts: contracts,
	}
}

// Bootstrap builds the kernel and wires the root router and scheduler.
// Idempotent: calling it again after a successful bootstrap is a no-op.
func (c *Coordinator) Bootstrap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.booted {
		return
	}
	c.Kernel = kernel.New(kernel.Config{ErrorManagerMaxSize: c.Config.ErrorManagerMaxSize})
	c.Router = NewRootRouter(c.Registry, c.Kernel)
	c.Scheduler = NewScheduler(SchedulerConfig{
		TimeSliceMs:                  c.Config.TimeSliceMs,
		Strategy:                     Strategy(c.Config.SchedulingStrategy),
		AdaptiveUtilizationThreshold: c.Config.AdaptiveUtilizationThreshold,
		AdaptiveConsecutiveTicks:     c.Config.AdaptiveConsecutiveTicks,
	}, c.Metrics, c.Log)
	c.booted = true
	c.Log.Info("coordinator bootstrapped", "strategy", c.Config.SchedulingStrategy, "timeSliceMs", c.Config.TimeSliceMs)
}

// RegisterSubsystem builds sub's facets, mints its kernel identity, adds it
// to the registry and the scheduler, and returns the narrowed Wrapper
// handle, acting as the coordinator's front door onto
// kernel.RegisterSubsystem.
func (c *Coordinator) RegisterSubsystem(sub *subsystem.Subsystem, priority int, identityTTL time.Duration) (*kernel.Wrapper, error) {
	c.mu.Lock()
	booted := c.booted
	c.mu.Unlock()
	if !booted {
		return nil, errors.New("coordinator: Bootstrap must run before RegisterSubsystem")
	}

	if err := sub.Build(&facet.BuildContext{SubsystemName: sub.Name, Debug: c.Config.Debug}); err != nil {
		return nil, err
	}

	w := c.Kernel.RegisterSubsystem(sub, identityTTL)
	if err := c.Registry.Register(sub.Name, w); err != nil {
		return nil, err
	}
	c.Scheduler.Add(sub.Name, w, priority)
	c.Log.Info("subsystem registered", "name", sub.Name)
	return w, nil
}

// Send routes env through the root router without any ACL check. Use
// SendProtected when the caller must be authenticated and rights-checked.
func (c *Coordinator) Send(env *message.Envelope, opts map[string]any) kernel.Result {
	res := c.Router.Route(env, opts)
	if !res.Success && res.Error != nil && res.Error.Code == errs.CodeHandler && c.Metrics != nil {
		c.Metrics.HandlerErrors.WithLabelValues(res.Subsystem).Inc()
	}
	return res
}

// SendProtected routes env through the kernel's sendProtected algorithm,
// enforcing caller identity and channel/resource ACLs before delegating to
// the same root router Send uses.
func (c *Coordinator) SendProtected(callerPKR kernel.PKR, env *message.Envelope, opts map[string]any) kernel.Result {
	res := c.Kernel.SendProtected(callerPKR, env, opts, func(e *message.Envelope, o map[string]any) (any, error) {
		routed := c.Router.Route(e, o)
		if !routed.Success {
			if routed.Error != nil {
				if routed.Error.Code == errs.CodeHandler && c.Metrics != nil {
					c.Metrics.HandlerErrors.WithLabelValues(routed.Subsystem).Inc()
				}
				return nil, errors.New(routed.Error.Message)
			}
			return nil, errors.Errorf("routing failed for %q", e.Path())
		}
		return routed.Value, nil
	})
	if !res.Success && res.Error != nil && res.Error.Code == errs.CodeAccessDenied && c.Metrics != nil {
		c.Metrics.ACLDenials.Inc()
	}
	return res
}

// ListenerOn enables and subscribes a plain listener.Handler to path on the
// named subsystem. Returns false if name isn't registered.
func (c *Coordinator) ListenerOn(name, path string, handler listener.Handler) bool {
	w, ok := c.Registry.Find(name)
	if !ok {
		return false
	}
	l := w.Listeners()
	l.Enable()
	l.On(path, handler)
	return true
}

// ListenerOnGroup is ListenerOn for a listener.HandlerGroup.
func (c *Coordinator) ListenerOnGroup(name, path string, group listener.HandlerGroup) bool {
	w, ok := c.Registry.Find(name)
	if !ok {
		return false
	}
	l := w.Listeners()
	l.Enable()
	l.OnGroup(path, group)
	return true
}

// ListenerOff removes every subscription on path for the named subsystem.
// Returns false if name isn't registered.
func (c *Coordinator) ListenerOff(name, path string) bool {
	w, ok := c.Registry.Find(name)
	if !ok {
		return false
	}
	w.Listeners().Off(path)
	return true
}

// StartScheduler launches the global time-slice loop.
func (c *Coordinator) StartScheduler() { c.Scheduler.Start() }

// StopScheduler halts the global time-slice loop and awaits any in-flight
// slice.
func (c *Coordinator) StopScheduler() { c.Scheduler.Stop() }

// Dispose tears down every registered subsystem in reverse registration
// order. The first error encountered is returned, but every subsystem is
// still given a chance to dispose.
func (c *Coordinator) Dispose() error {
	var firstErr error
	for _, name := range c.Registry.ReverseNames() {
		w, ok := c.Registry.Find(name)
		if !ok {
			continue
		}
		if err := w.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
