package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"submesh/internal/facet"
)

func TestMustRegisterAgainstIsolatedRegistry(t *testing.T) {
	reg := New()
	promReg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { reg.MustRegister(promReg) })

	reg.ACLDenials.Inc()
	families, err := promReg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHookAttachesMetricsFacet(t *testing.T) {
	reg := New()
	m := facet.NewManager(nil)
	require.NoError(t, m.Register(reg.Hook()))
	require.NoError(t, m.Build(&facet.BuildContext{SubsystemName: "test"}))

	f, ok := m.Find(Kind)
	require.True(t, ok)
	assert.Same(t, reg, f.Methods)
}
