package facet

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Manager holds the facets installed on a single subsystem and builds them
// from a set of registered Hooks in dependency order.
type Manager struct {
	hooks      map[Kind]*Hook
	order      []Kind // registration order, used to break topo-sort ties deterministically
	buildOrder []Kind // actual build/init order, used for Kinds/Dispose
	facets     map[Kind]*Facet
	built      bool

	contracts ContractRegistry
}

// NewManager returns an empty facet Manager. contracts may be nil, in which
// case Hook.Contract is ignored.
func NewManager(contracts ContractRegistry) *Manager {
	return &Manager{
		hooks:     make(map[Kind]*Hook),
		facets:    make(map[Kind]*Facet),
		contracts: contracts,
	}
}

// Register adds a Hook to the manager. Calling Register after Build has run
// returns an error, since facets are frozen once built.
func (m *Manager) Register(h Hook) error {
	if m.built {
		return errors.Errorf("facet: manager already built, cannot register kind %q", h.Kind)
	}
	if h.Kind == "" {
		return errors.New("facet: hook kind must not be empty")
	}
	if _, exists := m.hooks[h.Kind]; exists && !h.Overwrite {
		return errors.Errorf("facet: kind %q already registered (set Overwrite to replace)", h.Kind)
	}
	if _, exists := m.hooks[h.Kind]; !exists {
		m.order = append(m.order, h.Kind)
	}
	hh := h
	m.hooks[h.Kind] = &hh
	return nil
}

// Build resolves the dependency graph declared by Required and constructs
// every facet in an order that never builds a facet before its dependencies.
// Build is idempotent: calling it twice is a no-op returning nil.
func (m *Manager) Build(ctx *BuildContext) error {
	if m.built {
		return nil
	}
	ctx.Facets = m

	order, err := m.topoSort()
	if err != nil {
		return err
	}

	// initialised tracks kinds whose Init callback has already run, in the
	// order it ran, so a later failure can unwind them in reverse.
	var initialised []Kind
	unwind := func() {
		for i := len(initialised) - 1; i >= 0; i-- {
			k := initialised[i]
			_ = m.facets[k].Dispose()
		}
	}

	for _, kind := range order {
		h := m.hooks[kind]
		for _, req := range h.Required {
			if _, ok := m.facets[req]; !ok {
				unwind()
				return &BuildError{Kind: kind, Origin: h.Origin, Err: errors.Errorf("required facet %q not built", req)}
			}
		}

		f, err := h.Build(ctx)
		if err != nil {
			unwind()
			return &BuildError{Kind: kind, Origin: h.Origin, Err: err}
		}
		if f == nil {
			unwind()
			return &BuildError{Kind: kind, Origin: h.Origin, Err: errors.New("hook returned nil facet")}
		}
		f.Kind = kind
		if f.Origin == "" {
			f.Origin = h.Origin
		}
		if h.Contract != "" && m.contracts != nil {
			if err := m.contracts.Validate(h.Contract, f.Methods); err != nil {
				unwind()
				return &BuildError{Kind: kind, Origin: h.Origin, Err: errors.Wrap(err, "contract validation failed")}
			}
		}
		if h.InitFn != nil {
			f.init = func() error { return h.InitFn(f.Methods) }
		}
		if h.DisposeFn != nil {
			f.dispose = func() error { return h.DisposeFn(f.Methods) }
		}

		m.facets[kind] = f
		if err := f.Init(); err != nil {
			delete(m.facets, kind)
			unwind()
			return &BuildError{Kind: kind, Origin: h.Origin, Err: errors.Wrap(err, "init failed")}
		}
		initialised = append(initialised, kind)
		f.freeze()
	}

	m.buildOrder = initialised
	m.built = true
	return nil
}

// topoSort returns hook kinds in an order respecting Required edges, using
// registration order as the deterministic tiebreak among kinds with no
// remaining dependency constraint between them.
func (m *Manager) topoSort() ([]Kind, error) {
	indegree := make(map[Kind]int, len(m.hooks))
	dependents := make(map[Kind][]Kind)

	for kind, h := range m.hooks {
		if _, ok := indegree[kind]; !ok {
			indegree[kind] = 0
		}
		for _, req := range h.Required {
			if _, ok := m.hooks[req]; !ok {
				return nil, errors.Errorf("facet: kind %q requires unregistered kind %q", kind, req)
			}
			indegree[kind]++
			dependents[req] = append(dependents[req], kind)
		}
	}

	rank := make(map[Kind]int, len(m.order))
	for i, k := range m.order {
		rank[k] = i
	}

	var ready []Kind
	for kind, deg := range indegree {
		if deg == 0 {
			ready = append(ready, kind)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })

	var result []Kind
	for len(ready) > 0 {
		// pop the lowest-rank ready kind
		k := ready[0]
		ready = ready[1:]
		result = append(result, k)

		var unlocked []Kind
		for _, dep := range dependents[k] {
			indegree[dep]--
			if indegree[dep] == 0 {
				unlocked = append(unlocked, dep)
			}
		}
		sort.Slice(unlocked, func(i, j int) bool { return rank[unlocked[i]] < rank[unlocked[j]] })
		ready = append(ready, unlocked...)
		sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })
	}

	if len(result) != len(m.hooks) {
		return nil, errors.New("facet: dependency cycle detected among registered hooks")
	}
	return result, nil
}

// Find returns the built facet of the given kind.
func (m *Manager) Find(kind Kind) (*Facet, bool) {
	f, ok := m.facets[kind]
	return f, ok
}

// MustFind panics if kind was not built. Intended for wiring code at
// startup, never for request-handling paths.
func (m *Manager) MustFind(kind Kind) *Facet {
	f, ok := m.facets[kind]
	if !ok {
		panic(fmt.Sprintf("facet: kind %q not found", kind))
	}
	return f
}

// Kinds returns every built facet kind, in build order.
func (m *Manager) Kinds() []Kind {
	if !m.built {
		return nil
	}
	out := make([]Kind, len(m.buildOrder))
	copy(out, m.buildOrder)
	return out
}

// Dispose runs every facet's dispose callback in reverse build order. Errors
// are collected and joined rather than stopping at the first failure, so a
// single misbehaving facet cannot leak the rest.
func (m *Manager) Dispose() error {
	kinds := m.Kinds()
	var errs []error
	for i := len(kinds) - 1; i >= 0; i-- {
		f := m.facets[kinds[i]]
		if err := f.Dispose(); err != nil {
			errs = append(errs, errors.Wrapf(err, "facet %q dispose", kinds[i]))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	msg := "facet: dispose errors:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return errors.New(msg)
}
