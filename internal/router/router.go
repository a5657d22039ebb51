// Package router implements the ordered path-pattern matcher behind each
// subsystem's local route table, the kernel's own kernel:// routes included.
package router

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Handler processes a matched request. params holds any {name} segment
// values extracted from the path.
type Handler func(params map[string]string) (any, error)

// Route is one registered (pattern, handler) pair.
type Route struct {
	Pattern string
	Handler Handler
	Meta    map[string]any

	segments []segment
}

type segment struct {
	literal string
	isParam bool
	name    string
}

// Match is the result of a successful lookup.
type Match struct {
	Route  *Route
	Params map[string]string
}

// Router holds an ordered list of routes and matches a path against them in
// registration order, first match wins.
type Router struct {
	mu     sync.RWMutex
	routes []*Route
	byPat  map[string]int // pattern -> index into routes, for duplicate/overwrite checks
}

// New returns an empty Router.
func New() *Router {
	return &Router{byPat: make(map[string]int)}
}

// RegisterRoute adds pattern -> handler. Re-registering an existing pattern
// returns an error unless overwrite is true, in which case the handler and
// meta are replaced in place (preserving original registration order).
func (r *Router) RegisterRoute(pattern string, handler Handler, meta map[string]any, overwrite bool) error {
	if pattern == "" {
		return errors.New("router: pattern must not be empty")
	}
	if handler == nil {
		return errors.New("router: handler must not be nil")
	}

	segs, err := compile(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, exists := r.byPat[pattern]; exists {
		if !overwrite {
			return errors.Errorf("router: pattern %q already registered", pattern)
		}
		r.routes[idx].Handler = handler
		r.routes[idx].Meta = meta
		return nil
	}

	route := &Route{Pattern: pattern, Handler: handler, Meta: meta, segments: segs}
	r.byPat[pattern] = len(r.routes)
	r.routes = append(r.routes, route)
	return nil
}

// Unregister removes a previously registered pattern, if present.
func (r *Router) Unregister(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byPat[pattern]
	if !ok {
		return
	}
	r.routes = append(r.routes[:idx], r.routes[idx+1:]...)
	delete(r.byPat, pattern)
	for p, i := range r.byPat {
		if i > idx {
			r.byPat[p] = i - 1
		}
	}
}

// Match finds the first registered route whose pattern matches path, and
// extracts param values for any {name} segments.
func (r *Router) Match(path string) (*Match, bool) {
	parts := splitPath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, route := range r.routes {
		if params, ok := matchSegments(route.segments, parts); ok {
			return &Match{Route: route, Params: params}, true
		}
	}
	return nil, false
}

// Routes returns every registered route in registration order.
func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}

func compile(pattern string) ([]segment, error) {
	parts := splitPath(pattern)
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(p, "{"), "}")
			if name == "" {
				return nil, errors.Errorf("router: empty param name in pattern segment %q", p)
			}
			segs = append(segs, segment{isParam: true, name: name})
			continue
		}
		segs = append(segs, segment{literal: p})
	}
	return segs, nil
}

func matchSegments(segs []segment, parts []string) (map[string]string, bool) {
	if len(segs) != len(parts) {
		return nil, false
	}
	var params map[string]string
	for i, s := range segs {
		if s.isParam {
			if params == nil {
				params = make(map[string]string)
			}
			params[s.name] = parts[i]
			continue
		}
		if s.literal != parts[i] {
			return nil, false
		}
	}
	if params == nil {
		params = map[string]string{}
	}
	return params, true
}

// splitPath splits a path of the form scheme://a/b/c into
// ["scheme://a", "b", "c"] so the scheme+first segment are matched as one
// literal and every subsequent slash-separated piece is its own segment.
func splitPath(path string) []string {
	idx := strings.Index(path, "://")
	if idx < 0 {
		return strings.Split(path, "/")
	}
	head := path[:idx+3]
	rest := path[idx+3:]
	if rest == "" {
		return []string{head}
	}
	pieces := strings.Split(rest, "/")
	out := make([]string, 0, len(pieces)+1)
	out = append(out, head+pieces[0])
	out = append(out, pieces[1:]...)
	return out
}
