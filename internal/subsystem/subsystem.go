// Package subsystem implements the isolated processing unit driven by the
// coordinator's scheduler: facets, a local router, a bounded mailbox, and
// the accept/process pipeline.
package subsystem

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"submesh/internal/errs"
	"submesh/internal/facet"
	"submesh/internal/listener"
	"submesh/internal/message"
	"submesh/internal/queue"
	"submesh/internal/router"
)

// State is a subsystem's lifecycle position.
type State string

const (
	StateInitial  State = "initial"
	StateBuilt    State = "built"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateDisposed State = "disposed"
)

// Disposition selects how a subsystem schedules work. Canonical subsystems
// are driven by the coordinator's time-sliced process calls; synchronous
// subsystems (the kernel-like case) process every accept immediately on the
// caller's goroutine. Accept does not pass their messages through the queue,
// so re-entrant calls are not ordered by it.
type Disposition string

const (
	Canonical   Disposition = "canonical"
	Synchronous Disposition = "synchronous"
)

// Identity is the kernel-issued principal/PKR pair attached to a subsystem
// once registered, kept opaque here to avoid this package depending on the
// kernel package.
type Identity struct {
	PrincipalID string
	PKR         string
}

// ErrorSink receives classified failures; satisfied by *errs.Manager.
type ErrorSink interface {
	Record(errs.ErrorRecord)
}

// Subsystem is a single named unit of isolated processing.
type Subsystem struct {
	Name        string
	Disposition Disposition

	mu       sync.Mutex
	state    State
	identity *Identity

	facets   *facet.Manager
	router   *router.Router
	queue    *queue.BoundedQueue[*message.Envelope]
	listener *listener.Listener
	errSink  ErrorSink
}

// Config controls construction of a new Subsystem.
type Config struct {
	Name          string
	Disposition   Disposition
	QueueCapacity int
	QueuePolicy   queue.Policy
	Contracts     facet.ContractRegistry
	ErrorSink     ErrorSink
}

// New constructs an unbuilt Subsystem in StateInitial.
func New(cfg Config) *Subsystem {
	disp := cfg.Disposition
	if disp == "" {
		disp = Canonical
	}
	cap := cfg.QueueCapacity
	if cap <= 0 {
		cap = 256
	}
	return &Subsystem{
		Name:        cfg.Name,
		Disposition: disp,
		state:       StateInitial,
		facets:      facet.NewManager(cfg.Contracts),
		router:      router.New(),
		queue:       queue.New[*message.Envelope](cap, cfg.QueuePolicy),
		listener:    listener.New(),
		errSink:     cfg.ErrorSink,
	}
}

// Router exposes the subsystem's local router for route registration.
func (s *Subsystem) Router() *router.Router { return s.router }

// Facets exposes the subsystem's facet manager for hook registration prior
// to Build.
func (s *Subsystem) Facets() *facet.Manager { return s.facets }

// Listener exposes the subsystem's pub/sub bus.
func (s *Subsystem) Listener() *listener.Listener { return s.listener }

// Queue exposes the subsystem's mailbox, chiefly so the scheduler can check
// depth for load-based strategies.
func (s *Subsystem) Queue() *queue.BoundedQueue[*message.Envelope] { return s.queue }

// State returns the current lifecycle state.
func (s *Subsystem) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetIdentity attaches the kernel-issued identity; called once by the
// kernel's RegisterSubsystem during registration.
func (s *Subsystem) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = &id
}

// Identity returns the attached identity, if any.
func (s *Subsystem) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Build runs the facet manager's dependency-ordered build and transitions
// to StateBuilt. Build is idempotent.
func (s *Subsystem) Build(ctx *facet.BuildContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitial {
		return nil
	}
	if ctx.SubsystemName == "" {
		ctx.SubsystemName = s.Name
	}
	if err := s.facets.Build(ctx); err != nil {
		return err
	}
	s.state = StateBuilt
	return nil
}

// Pause moves a built/running subsystem to StatePaused. Paused subsystems
// still accept enqueues but are skipped by the scheduler.
func (s *Subsystem) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning && s.state != StateBuilt {
		return errors.Errorf("subsystem %q: cannot pause from state %q", s.Name, s.state)
	}
	s.state = StatePaused
	return nil
}

// Resume moves a paused subsystem back to StateRunning.
func (s *Subsystem) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return errors.Errorf("subsystem %q: cannot resume from state %q", s.Name, s.state)
	}
	s.state = StateRunning
	return nil
}

// Dispose runs facet teardown and transitions to the terminal StateDisposed.
func (s *Subsystem) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return nil
	}
	err := s.facets.Dispose()
	s.state = StateDisposed
	return err
}

// AcceptResult is returned by Accept.
type AcceptResult struct {
	Enqueued bool  // true if the message was queued rather than processed inline
	Accepted bool  // false if the enqueue was rejected by the queue policy
	Result   any   // set when the message was processed inline (a query or a synchronous subsystem)
	Err      error
}

// Accept never blocks. A query whose route matches, or any message on a
// Synchronous subsystem, is processed immediately. Everything else is
// enqueued for the scheduler's next process call.
func (s *Subsystem) Accept(env *message.Envelope, opts map[string]any) AcceptResult {
	s.mu.Lock()
	disposed := s.state == StateDisposed
	synchronous := s.Disposition == Synchronous
	s.mu.Unlock()
	if disposed {
		return AcceptResult{Err: errors.Errorf("subsystem %q is disposed", s.Name)}
	}

	if synchronous {
		result, err := s.processMessage(env)
		return AcceptResult{Result: result, Err: err}
	}

	if env.Fixed().IsQuery {
		if _, ok := s.router.Match(env.Path()); ok {
			result, err := s.processMessage(env)
			return AcceptResult{Result: result, Err: err}
		}
	}

	ok, err := s.queue.Enqueue(env, opts)
	return AcceptResult{Enqueued: true, Accepted: ok, Err: err}
}

// Process dequeues and handles as many messages as fit within timeSliceMs,
// or until the queue drains, whichever comes first. The coordinator's
// scheduler is the only caller.
func (s *Subsystem) Process(timeSliceMs int) {
	s.mu.Lock()
	if s.state == StateBuilt {
		s.state = StateRunning
	}
	skip := s.state != StateRunning
	s.mu.Unlock()
	if skip {
		return
	}

	deadline := time.Now().Add(time.Duration(timeSliceMs) * time.Millisecond)
	for time.Now().Before(deadline) {
		env, _, ok := s.queue.Dequeue()
		if !ok {
			return
		}
		s.processMessage(env)
	}
}

func (s *Subsystem) processMessage(env *message.Envelope) (any, error) {
	match, ok := s.router.Match(env.Path())
	if !ok {
		rec := errs.Classify(s.Name, env.Path(), errs.CodeUnrouteable, errors.Errorf("no route for %q", env.Path()))
		s.reportError(rec)
		return nil, errors.New(string(errs.CodeUnrouteable))
	}

	result, err := match.Route.Handler(match.Params)
	if err != nil {
		return s.handleFailure(env, errors.Wrap(err, "handler error"))
	}

	if env.Fixed().IsQuery {
		env.SetQueryResult(result)
	}
	s.emit(env, listener.OnSuccess, result, nil)
	return result, nil
}

func (s *Subsystem) handleFailure(env *message.Envelope, cause error) (any, error) {
	rec := errs.Classify(s.Name, env.Path(), errs.CodeHandler, cause)
	s.reportError(rec)

	if env.Fixed().MaxRetries > 0 && env.IncrementRetry() {
		_, _ = s.queue.Enqueue(env, nil)
		return nil, cause
	}

	s.emit(env, listener.OnFailure, nil, cause)
	return nil, cause
}

func (s *Subsystem) reportError(rec errs.ErrorRecord) {
	if s.errSink != nil {
		s.errSink.Record(rec)
	}
}

func (s *Subsystem) emit(env *message.Envelope, outcome listener.Outcome, body any, err error) {
	if !s.listener.Enabled() {
		return
	}
	s.listener.Emit(listener.Event{
		Path:    eventPath(s.Name, env.Path()),
		Outcome: outcome,
		Body:    body,
		Err:     err,
	})
}

// eventPath derives "<subsystem>://event/<last-segment>" from a processed
// message's path.
func eventPath(subsystem, path string) string {
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	return subsystem + "://event/" + last
}
