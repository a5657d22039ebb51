package message

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var pathGrammar = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*://(?:[^/{}]+|\{[A-Za-z_][A-Za-z0-9_]*\})(?:/(?:[^/{}]+|\{[A-Za-z_][A-Za-z0-9_]*\}))*$`)

// ValidatePath enforces the subsystem://segment/segment path grammar:
//
//	path      = subsystem "://" segment ("/" segment)*
//	subsystem = [A-Za-z][A-Za-z0-9_-]*
//	segment   = literal | param
//	param     = "{" identifier "}"
//	literal   = [^/{}]+
func ValidatePath(path string) error {
	if !pathGrammar.MatchString(path) {
		return fmt.Errorf("message: malformed path %q", path)
	}
	return nil
}

// Factory centralises envelope construction: id generation, fixed-meta
// computation from a type tag plus options, sender-id auto-generation for
// commands, and query auto-detection.
type Factory struct {
	counter int64
	mu      sync.Mutex
	rand    *rand.Rand
}

// NewFactory returns a Factory with its own monotonic id counter.
func NewFactory() *Factory {
	return &Factory{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Option configures fixed metadata at construction time.
type Option func(*FixedMeta)

func WithType(t Type) Option            { return func(f *FixedMeta) { f.Type = t } }
func WithMaxRetries(n int) Option       { return func(f *FixedMeta) { f.MaxRetries = n } }
func WithTransaction(id string) Option  { return func(f *FixedMeta) { f.Transaction = id } }
func WithSeq(seq int64) Option          { return func(f *FixedMeta) { f.Seq = seq } }
func WithSenderID(id string) Option     { return func(f *FixedMeta) { f.SenderID = id } }
func WithCaller(subsystem string) Option { return func(f *FixedMeta) { f.Caller = subsystem } }
func WithCustom(key string, value any) Option {
	return func(f *FixedMeta) {
		if f.Custom == nil {
			f.Custom = map[string]any{}
		}
		f.Custom[key] = value
	}
}

// nextID produces ids of the form msg_<monotonic>_<rand>, unique within the
// process for the lifetime of this Factory.
func (f *Factory) nextID() string {
	n := atomic.AddInt64(&f.counter, 1)
	f.mu.Lock()
	suffix := f.rand.Int63()
	f.mu.Unlock()
	return fmt.Sprintf("msg_%d_%d", n, suffix)
}

// Create builds a new Envelope for path/body, deriving fixed metadata from
// the supplied options, defaulting Type to TypeSimple.
func (f *Factory) Create(path string, body any, opts ...Option) (*Envelope, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	fixed := FixedMeta{Timestamp: time.Now().UTC(), Type: TypeSimple}
	for _, opt := range opts {
		opt(&fixed)
	}
	f.finalizeFixed(path, &fixed)

	env := newEnvelope(f.nextID(), path, body, fixed)
	return env, nil
}

// finalizeFixed derives the boolean projections and auto-generated fields
// from the resolved Type tag and path, per the data model invariants.
func (f *Factory) finalizeFixed(path string, fixed *FixedMeta) {
	fixed.IsAtomic = fixed.Type == TypeAtomic
	fixed.IsBatch = fixed.Type == TypeBatch
	fixed.IsCommand = fixed.Type == TypeCommand
	fixed.IsError = fixed.Type == TypeError
	fixed.IsQuery = fixed.Type == TypeQuery || IsQueryPath(path)

	if fixed.IsCommand && fixed.SenderID == "" {
		fixed.SenderID = uuid.NewString()
	}
}

// BatchSpec describes one message within a transaction batch.
type BatchSpec struct {
	Path string
	Body any
	Opts []Option
}

// CreateTransactionBatch allocates a single transaction id shared by every
// message in specs, assigning monotonically increasing seq values starting
// at 1. globalOpts apply to every message before its own per-item options.
func (f *Factory) CreateTransactionBatch(specs []BatchSpec, globalOpts ...Option) ([]*Envelope, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("message: transaction batch must not be empty")
	}
	txID := uuid.NewString()
	out := make([]*Envelope, 0, len(specs))
	for i, spec := range specs {
		opts := make([]Option, 0, len(globalOpts)+len(spec.Opts)+2)
		opts = append(opts, WithType(TypeTransaction), WithTransaction(txID), WithSeq(int64(i+1)))
		opts = append(opts, globalOpts...)
		opts = append(opts, spec.Opts...)
		env, err := f.Create(spec.Path, spec.Body, opts...)
		if err != nil {
			return nil, fmt.Errorf("message: batch item %d: %w", i, err)
		}
		out = append(out, env)
	}
	return out, nil
}
