package coordinator

import (
	"strings"

	"github.com/pkg/errors"

	"submesh/internal/errs"
	"submesh/internal/kernel"
	"submesh/internal/message"
	"submesh/internal/subsystem"
)

// RootRouter extracts the subsystem name from a path, forwards kernel://
// traffic synchronously ahead of the registry, looks up everything else in
// the Registry, and delegates to the target's Accept.
type RootRouter struct {
	registry *Registry
	kern     *kernel.Kernel
}

// NewRootRouter wires a RootRouter over registry and kern.
func NewRootRouter(registry *Registry, kern *kernel.Kernel) *RootRouter {
	return &RootRouter{registry: registry, kern: kern}
}

func extractSubsystemName(path string) string {
	idx := strings.Index(path, "://")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Route extracts the subsystem name from env's path, forwards kernel://
// traffic directly to the kernel's synchronous pipeline, otherwise looks the
// name up in the registry and delegates to its Accept. A malformed or
// unregistered name is classified and recorded on the kernel's error
// manager, and surfaced as a structured failure rather than returned as a
// Go error, matching the rest of the boundary Result envelope.
func (rr *RootRouter) Route(env *message.Envelope, opts map[string]any) kernel.Result {
	name := extractSubsystemName(env.Path())
	if name == "" {
		return rr.fail("", env, errs.CodeUnrouteable, errors.Errorf("malformed path %q", env.Path()))
	}

	if name == kernel.Name {
		return rr.fromAccept(name, env, rr.kern.Accept(env, opts))
	}

	w, ok := rr.registry.Find(name)
	if !ok {
		return rr.fail(name, env, errs.CodeUnrouteable, errors.Errorf("no subsystem registered at %q", name))
	}

	return rr.fromAccept(name, env, w.Accept(env, opts))
}

func (rr *RootRouter) fail(subsystemName string, env *message.Envelope, code errs.Code, cause error) kernel.Result {
	rec := errs.Classify(subsystemName, env.Path(), code, cause)
	rr.kern.Errors.Record(rec)
	re := rec.ToResultError()
	return kernel.Result{Subsystem: subsystemName, MessageID: env.ID(), Error: &re}
}

// fromAccept translates a subsystem.AcceptResult into the boundary Result
// envelope, classifying queue-overflow and handler failures along the way.
func (rr *RootRouter) fromAccept(name string, env *message.Envelope, res subsystem.AcceptResult) kernel.Result {
	if res.Err != nil {
		code := errs.CodeHandler
		if res.Enqueued {
			code = errs.CodeQueueFull
		}
		return rr.fail(name, env, code, res.Err)
	}
	if res.Enqueued && !res.Accepted {
		return rr.fail(name, env, errs.CodeQueueFull, errors.Errorf("queue policy rejected message at %q", env.Path()))
	}
	return kernel.Result{Success: true, Subsystem: name, MessageID: env.ID(), Value: res.Result}
}
