// Package message implements the immutable message envelope used to carry
// requests between subsystems: a split fixed/mutable metadata model over an
// arbitrary payload, addressed by a subsystem://segment/segment path.
package message

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Type tags the kind of message, fixed at construction.
type Type string

const (
	TypeSimple      Type = "simple"
	TypeAtomic      Type = "atomic"
	TypeBatch       Type = "batch"
	TypeQuery       Type = "query"
	TypeRetry       Type = "retry"
	TypeTransaction Type = "transaction"
	TypeCommand     Type = "command"
	TypeError       Type = "error"
)

var queryPathPattern = regexp.MustCompile(`^[^:]+://query/`)

// FixedMeta is frozen at construction; no method on Envelope ever mutates it.
type FixedMeta struct {
	Timestamp   time.Time      `json:"timestamp"`
	Type        Type           `json:"type"`
	MaxRetries  int            `json:"maxRetries"`
	IsAtomic    bool           `json:"isAtomic"`
	IsBatch     bool           `json:"isBatch"`
	IsQuery     bool           `json:"isQuery"`
	IsCommand   bool           `json:"isCommand"`
	IsError     bool           `json:"isError"`
	Transaction string         `json:"transaction,omitempty"`
	Seq         int64          `json:"seq,omitempty"`
	SenderID    string         `json:"senderId,omitempty"`
	Caller      string         `json:"caller,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// clone returns a deep copy so callers can never reach into Envelope state.
func (f FixedMeta) clone() FixedMeta {
	out := f
	if f.Custom != nil {
		out.Custom = make(map[string]any, len(f.Custom))
		for k, v := range f.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// mutableState is the mutable half, guarded by its own lock so concurrent
// readers (other subsystems inspecting a message via getters) never race
// with the owning subsystem's handler.
type mutableState struct {
	mu          sync.Mutex
	retries     int
	queryResult any
	custom      map[string]any
}

func (m *mutableState) snapshot() mutableSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	custom := make(map[string]any, len(m.custom))
	for k, v := range m.custom {
		custom[k] = v
	}
	return mutableSnapshot{Retries: m.retries, QueryResult: m.queryResult, Custom: custom}
}

type mutableSnapshot struct {
	Retries     int            `json:"retries"`
	QueryResult any            `json:"queryResult,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Envelope is the immutable-by-contract message passed between subsystems.
// Only the mutable half (retries, queryResult, custom mutable fields) may
// change after construction, and only through the mutator methods below.
type Envelope struct {
	id      string
	path    string
	body    any
	fixed   FixedMeta
	mutable *mutableState
}

func newEnvelope(id, path string, body any, fixed FixedMeta) *Envelope {
	return &Envelope{
		id:      id,
		path:    path,
		body:    body,
		fixed:   fixed.clone(),
		mutable: &mutableState{custom: map[string]any{}},
	}
}

func (e *Envelope) ID() string   { return e.id }
func (e *Envelope) Path() string { return e.path }
func (e *Envelope) Body() any    { return e.body }

// Fixed returns a deep copy of the frozen metadata half.
func (e *Envelope) Fixed() FixedMeta { return e.fixed.clone() }

func (e *Envelope) Retries() int {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	return e.mutable.retries
}

func (e *Envelope) QueryResult() any {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	return e.mutable.queryResult
}

// MutableCustom returns a copy of the mutable named-field map.
func (e *Envelope) MutableCustom() map[string]any {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	out := make(map[string]any, len(e.mutable.custom))
	for k, v := range e.mutable.custom {
		out[k] = v
	}
	return out
}

// SetRetries sets the retry counter directly; n must be >= 0.
func (e *Envelope) SetRetries(n int) error {
	if n < 0 {
		return fmt.Errorf("message: retries must be >= 0, got %d", n)
	}
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	e.mutable.retries = n
	return nil
}

// IncrementRetry bumps the retry counter and reports whether another
// attempt is still permitted. The counter is allowed to reach
// maxRetries+1 exactly once, at which point canRetry is false.
func (e *Envelope) IncrementRetry() (canRetry bool) {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	e.mutable.retries++
	return e.mutable.retries <= e.fixed.MaxRetries
}

// ResetRetries zeroes the retry counter.
func (e *Envelope) ResetRetries() {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	e.mutable.retries = 0
}

// SetQueryResult stores the synchronous result for a query message.
func (e *Envelope) SetQueryResult(v any) {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	e.mutable.queryResult = v
}

// UpdateMutable merges partial into the mutable named-field map. It never
// touches fixed fields; there is no path from here to FixedMeta.
func (e *Envelope) UpdateMutable(partial map[string]any) {
	e.mutable.mu.Lock()
	defer e.mutable.mu.Unlock()
	if e.mutable.custom == nil {
		e.mutable.custom = map[string]any{}
	}
	for k, v := range partial {
		e.mutable.custom[k] = v
	}
}

// wireEnvelope is the JSON-serialisable form; both halves are required on
// deserialisation.
type wireEnvelope struct {
	ID      string           `json:"id"`
	Path    string           `json:"path"`
	Body    any              `json:"body,omitempty"`
	Fixed   *FixedMeta       `json:"fixed"`
	Mutable *mutableSnapshot `json:"mutable"`
}

// ToJSON serialises both metadata halves alongside id/path/body.
func (e *Envelope) ToJSON() ([]byte, error) {
	fixed := e.Fixed()
	mutable := e.mutable.snapshot()
	return json.Marshal(wireEnvelope{
		ID:      e.id,
		Path:    e.path,
		Body:    e.body,
		Fixed:   &fixed,
		Mutable: &mutable,
	})
}

// FromJSON rejects any payload missing either metadata half.
func FromJSON(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("message: invalid json: %w", err)
	}
	if w.Fixed == nil {
		return nil, fmt.Errorf("message: missing fixed metadata")
	}
	if w.Mutable == nil {
		return nil, fmt.Errorf("message: missing mutable metadata")
	}
	env := newEnvelope(w.ID, w.Path, w.Body, *w.Fixed)
	env.mutable.retries = w.Mutable.Retries
	env.mutable.queryResult = w.Mutable.QueryResult
	if w.Mutable.Custom != nil {
		env.mutable.custom = make(map[string]any, len(w.Mutable.Custom))
		for k, v := range w.Mutable.Custom {
			env.mutable.custom[k] = v
		}
	}
	return env, nil
}

// IsQueryPath reports whether a path matches the query auto-detection
// grammar `^[^:]+://query/`.
func IsQueryPath(path string) bool {
	return queryPathPattern.MatchString(path)
}
