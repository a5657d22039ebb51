package kernel

import (
	"submesh/internal/errs"
	"submesh/internal/message"
)

// Result mirrors the boundary-facing envelope returned by send/sendProtected.
type Result struct {
	Success   bool
	Subsystem string
	MessageID string
	Value     any
	Error     *errs.ResultError
}

// RouteFunc delegates a message to the root router once sendProtected has
// cleared it; opts carries the callerId fields sendProtected injects.
type RouteFunc func(env *message.Envelope, opts map[string]any) (any, error)

// SendProtected implements the kernel's six-step ACL algorithm:
//  1. validate callerPkr is registered and unexpired
//  2. strip/overwrite opts.callerId with the validated caller
//  3. notify the response overlay if this message is itself a response
//  4/5. enforce channel participation / resource ACL rights
//  6. delegate to route and return its result
func (k *Kernel) SendProtected(callerPKR PKR, env *message.Envelope, opts map[string]any, route RouteFunc) Result {
	subsystem := extractSubsystemName(env.Path())

	if !k.AccessControl.Principals.IsValid(callerPKR) {
		rec := errs.Classify(subsystem, env.Path(), errs.CodeAccessDenied, ErrAccessDenied)
		k.Errors.Record(rec)
		re := rec.ToResultError()
		return Result{Success: false, Subsystem: subsystem, MessageID: env.ID(), Error: &re}
	}

	if opts == nil {
		opts = make(map[string]any)
	}
	delete(opts, "callerId")
	opts["callerId"] = callerPKR.UUID
	opts["callerIdSetBy"] = k.SelfPKR.UUID

	if isResponse, _ := env.Fixed().Custom["isResponse"].(bool); isResponse {
		if replyTo, ok := env.MutableCustom()["replyTo"].(string); ok {
			if k.Responses.Resolve(replyTo, env.Body()) {
				return Result{Success: true, Subsystem: subsystem, MessageID: env.ID()}
			}
		}
	}

	if err := k.AccessControl.CheckAccess(callerPKR, env); err != nil {
		rec := errs.Classify(subsystem, env.Path(), errs.CodeAccessDenied, err)
		k.Errors.Record(rec)
		re := rec.ToResultError()
		return Result{Success: false, Subsystem: subsystem, MessageID: env.ID(), Error: &re}
	}

	value, err := route(env, opts)
	if err != nil {
		rec := errs.Classify(subsystem, env.Path(), errs.CodeHandler, err)
		k.Errors.Record(rec)
		re := rec.ToResultError()
		return Result{Success: false, Subsystem: subsystem, MessageID: env.ID(), Error: &re}
	}

	return Result{Success: true, Subsystem: subsystem, MessageID: env.ID(), Value: value}
}
