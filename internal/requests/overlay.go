// Package requests implements the request/response overlay on top of the
// fire-and-forget message core: one-shot reply routes and channel-based
// command replies, both with bounded timeouts.
package requests

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"submesh/internal/errs"
)

// ErrTimeout is returned when a waiter's deadline elapses before a reply
// arrives.
var ErrTimeout = errors.New("requests: timed out waiting for reply")

// replyWaiter tracks one outstanding one-shot reply route: a single-shot
// result that completes exactly once, either via resolve or by timing out.
type replyWaiter struct {
	done      chan struct{}
	once      sync.Once
	result    any
	resultErr error
}

func newReplyWaiter() *replyWaiter {
	return &replyWaiter{done: make(chan struct{})}
}

func (w *replyWaiter) resolve(v any, err error) {
	w.once.Do(func() {
		w.result, w.resultErr = v, err
		close(w.done)
	})
}

// await blocks until resolve runs.
func (w *replyWaiter) await() (any, error) {
	<-w.done
	return w.result, w.resultErr
}

// awaitTimeout waits up to d for resolve to run; ok is false on timeout.
func (w *replyWaiter) awaitTimeout(d time.Duration) (v any, err error, ok bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.done:
		return w.result, w.resultErr, true
	case <-timer.C:
		return nil, nil, false
	}
}

// Overlay manages transient one-shot reply routes and channel-correlated
// command replies for a single coordinator.
type Overlay struct {
	mu      sync.Mutex
	waiters map[string]*replyWaiter // path -> waiter, e.g. "subsystem://reply/<messageId>"
}

// New returns an empty Overlay.
func New() *Overlay {
	return &Overlay{waiters: make(map[string]*replyWaiter)}
}

// ReplyPath builds the transient one-shot reply path for a message id on a
// subsystem: "<subsystem>://reply/<messageId>".
func ReplyPath(subsystem, messageID string) string {
	return subsystem + "://reply/" + messageID
}

// Register installs a transient waiter for path, returning a function the
// caller awaits for the result with a 3-way timeout discipline: d < 0 blocks
// forever, d == 0 polls once, d > 0 waits up to d. The waiter is always
// unregistered before the await function returns, whether by reply, timeout,
// or poll-miss.
func (o *Overlay) Register(path string) (await func(d time.Duration) (any, error)) {
	w := newReplyWaiter()

	o.mu.Lock()
	o.waiters[path] = w
	o.mu.Unlock()

	return func(d time.Duration) (any, error) {
		defer o.unregister(path)
		switch {
		case d < 0:
			return w.await()
		case d == 0:
			select {
			case <-w.done:
				return w.await()
			default:
				return nil, ErrTimeout
			}
		default:
			v, err, ok := w.awaitTimeout(d)
			if !ok {
				return nil, ErrTimeout
			}
			return v, err
		}
	}
}

// Resolve delivers a reply body to the waiter registered at path, if any.
// Returns false if no waiter is currently registered there (e.g. it already
// timed out and was unregistered).
func (o *Overlay) Resolve(path string, body any) bool {
	return o.complete(path, body, nil)
}

// Reject fails the waiter registered at path with err.
func (o *Overlay) Reject(path string, err error) bool {
	return o.complete(path, nil, err)
}

func (o *Overlay) complete(path string, body any, err error) bool {
	o.mu.Lock()
	w, ok := o.waiters[path]
	o.mu.Unlock()
	if !ok {
		return false
	}
	w.resolve(body, err)
	return true
}

func (o *Overlay) unregister(path string) {
	o.mu.Lock()
	delete(o.waiters, path)
	o.mu.Unlock()
}

// Has reports whether path currently has a registered one-shot waiter.
func (o *Overlay) Has(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.waiters[path]
	return ok
}

// TimeoutError classifies a timed-out wait on path as a REQUEST_TIMEOUT
// ErrorRecord for the error manager.
func TimeoutError(subsystem, path string) errs.ErrorRecord {
	return errs.Classify(subsystem, path, errs.CodeRequestTimeout, ErrTimeout)
}

// RegisterCommand, ResolveCommand and RejectCommand are Register/Resolve/
// Reject keyed by a command's correlation id rather than a reply path, for
// the channel-based command-reply flow: a command is sent with a
// correlationId, the channel route matches replies by that id, and the
// matching waiter's resolver is invoked the same way a one-shot reply
// waiter's is. The key namespaces never collide in practice since reply
// paths always contain "://" and correlation ids are bare UUIDs.
func (o *Overlay) RegisterCommand(correlationID string) (await func(d time.Duration) (any, error)) {
	return o.Register(correlationID)
}

func (o *Overlay) ResolveCommand(correlationID string, body any) bool {
	return o.Resolve(correlationID, body)
}

func (o *Overlay) RejectCommand(correlationID string, err error) bool {
	return o.Reject(correlationID, err)
}
