package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchLiteralPath(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("store://items/list", func(p map[string]string) (any, error) { return "list", nil }, nil, false))

	m, ok := r.Match("store://items/list")
	require.True(t, ok)
	assert.Empty(t, m.Params)
}

func TestMatchExtractsParams(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("store://items/{id}", func(p map[string]string) (any, error) { return p["id"], nil }, nil, false))

	m, ok := r.Match("store://items/42")
	require.True(t, ok)
	assert.Equal(t, "42", m.Params["id"])

	res, err := m.Route.Handler(m.Params)
	require.NoError(t, err)
	assert.Equal(t, "42", res)
}

func TestFirstMatchWins(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("store://items/{id}", func(p map[string]string) (any, error) { return "generic", nil }, nil, false))
	require.NoError(t, r.RegisterRoute("store://items/special", func(p map[string]string) (any, error) { return "specific", nil }, nil, false))

	m, ok := r.Match("store://items/special")
	require.True(t, ok)
	res, _ := m.Route.Handler(m.Params)
	assert.Equal(t, "generic", res, "first registered route wins even though a later one is a more exact literal match")
}

func TestDuplicatePatternRejectedWithoutOverwrite(t *testing.T) {
	r := New()
	h := func(p map[string]string) (any, error) { return nil, nil }
	require.NoError(t, r.RegisterRoute("a://b", h, nil, false))
	err := r.RegisterRoute("a://b", h, nil, false)
	assert.Error(t, err)
}

func TestDuplicatePatternOverwriteReplacesHandler(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("a://b", func(p map[string]string) (any, error) { return "old", nil }, nil, false))
	require.NoError(t, r.RegisterRoute("a://b", func(p map[string]string) (any, error) { return "new", nil }, nil, true))

	m, ok := r.Match("a://b")
	require.True(t, ok)
	res, _ := m.Route.Handler(m.Params)
	assert.Equal(t, "new", res)
}

func TestNoMatchReturnsFalse(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("a://b", func(p map[string]string) (any, error) { return nil, nil }, nil, false))
	_, ok := r.Match("a://c")
	assert.False(t, ok)
}

func TestUnregisterRemovesRoute(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterRoute("a://b", func(p map[string]string) (any, error) { return nil, nil }, nil, false))
	r.Unregister("a://b")
	_, ok := r.Match("a://b")
	assert.False(t, ok)
}
