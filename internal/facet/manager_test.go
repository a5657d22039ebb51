package facet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Facet build order is a deterministic function of the declared dependency
// graph: a facet is never built before any facet it requires, and ties
// break by registration order.
func TestBuildOrderRespectsDependencies(t *testing.T) {
	var order []Kind

	m := NewManager(nil)
	record := func(k Kind) func(ctx *BuildContext) (*Facet, error) {
		return func(ctx *BuildContext) (*Facet, error) {
			order = append(order, k)
			return &Facet{Methods: k}, nil
		}
	}

	require.NoError(t, m.Register(Hook{Kind: "c", Required: []Kind{"a", "b"}, Origin: "test", Build: record("c")}))
	require.NoError(t, m.Register(Hook{Kind: "a", Origin: "test", Build: record("a")}))
	require.NoError(t, m.Register(Hook{Kind: "b", Required: []Kind{"a"}, Origin: "test", Build: record("b")}))

	require.NoError(t, m.Build(&BuildContext{SubsystemName: "sub"}))

	assert.Equal(t, []Kind{"a", "b", "c"}, order)
}

func TestBuildDetectsCycle(t *testing.T) {
	m := NewManager(nil)
	noop := func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil }

	require.NoError(t, m.Register(Hook{Kind: "x", Required: []Kind{"y"}, Origin: "test", Build: noop}))
	require.NoError(t, m.Register(Hook{Kind: "y", Required: []Kind{"x"}, Origin: "test", Build: noop}))

	err := m.Build(&BuildContext{})
	assert.Error(t, err)
}

func TestBuildFailsOnMissingRequired(t *testing.T) {
	m := NewManager(nil)
	noop := func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil }

	require.NoError(t, m.Register(Hook{Kind: "x", Required: []Kind{"ghost"}, Origin: "test", Build: noop}))

	err := m.Build(&BuildContext{})
	assert.Error(t, err)
}

func TestBuildRunsInitAndFreezes(t *testing.T) {
	m := NewManager(nil)
	initCalled := false

	require.NoError(t, m.Register(Hook{
		Kind:   "svc",
		Origin: "test",
		Build:  func(ctx *BuildContext) (*Facet, error) { return &Facet{Methods: "impl"}, nil },
		InitFn: func(methods any) error { initCalled = true; return nil },
	}))

	require.NoError(t, m.Build(&BuildContext{}))
	assert.True(t, initCalled)

	f, ok := m.Find("svc")
	require.True(t, ok)
	assert.True(t, f.Frozen())
}

func TestDisposeRunsInReverseOrder(t *testing.T) {
	var disposed []Kind
	m := NewManager(nil)
	mk := func(k Kind, req ...Kind) Hook {
		return Hook{
			Kind:      k,
			Required:  req,
			Origin:    "test",
			Build:     func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil },
			DisposeFn: func(methods any) error { disposed = append(disposed, k); return nil },
		}
	}
	require.NoError(t, m.Register(mk("a")))
	require.NoError(t, m.Register(mk("b", "a")))
	require.NoError(t, m.Build(&BuildContext{}))

	require.NoError(t, m.Dispose())
	assert.Equal(t, []Kind{"b", "a"}, disposed)
}

// When a dependency edge reorders the build relative to registration,
// Dispose must still tear down in reverse build order, not reverse
// registration order.
func TestDisposeFollowsBuildOrderNotRegistrationOrder(t *testing.T) {
	var disposed []Kind
	m := NewManager(nil)
	mk := func(k Kind, req ...Kind) Hook {
		return Hook{
			Kind:      k,
			Required:  req,
			Origin:    "test",
			Build:     func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil },
			DisposeFn: func(methods any) error { disposed = append(disposed, k); return nil },
		}
	}
	// Registered c, a, b — but c requires a and b, so build order is a, b, c.
	require.NoError(t, m.Register(mk("c", "a", "b")))
	require.NoError(t, m.Register(mk("a")))
	require.NoError(t, m.Register(mk("b", "a")))
	require.NoError(t, m.Build(&BuildContext{}))

	assert.Equal(t, []Kind{"a", "b", "c"}, m.Kinds())

	require.NoError(t, m.Dispose())
	assert.Equal(t, []Kind{"c", "b", "a"}, disposed)
}

// When a later facet's init fails, already-initialised facets are disposed
// in reverse order and the error propagates.
func TestBuildUnwindsDisposeOnLaterInitFailure(t *testing.T) {
	var disposed []Kind
	m := NewManager(nil)
	mk := func(k Kind, fail bool, req ...Kind) Hook {
		return Hook{
			Kind:     k,
			Required: req,
			Origin:   "test",
			Build:    func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil },
			InitFn: func(methods any) error {
				if fail {
					return assert.AnError
				}
				return nil
			},
			DisposeFn: func(methods any) error { disposed = append(disposed, k); return nil },
		}
	}
	require.NoError(t, m.Register(mk("a", false)))
	require.NoError(t, m.Register(mk("b", false, "a")))
	require.NoError(t, m.Register(mk("c", true, "b")))

	err := m.Build(&BuildContext{})
	require.Error(t, err)
	assert.Equal(t, []Kind{"b", "a"}, disposed)

	_, ok := m.Find("c")
	assert.False(t, ok)
}

func TestRegisterAfterBuildRejected(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Build(&BuildContext{}))
	err := m.Register(Hook{Kind: "late", Origin: "test", Build: func(ctx *BuildContext) (*Facet, error) { return &Facet{}, nil }})
	assert.Error(t, err)
}
