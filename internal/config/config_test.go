package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesBaseline(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 50, cfg.TimeSliceMs)
	assert.Equal(t, "round-robin", cfg.SchedulingStrategy)
	assert.Equal(t, 1000, cfg.ErrorManagerMaxSize)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 0.75, cfg.AdaptiveUtilizationThreshold)
	assert.Equal(t, 3, cfg.AdaptiveConsecutiveTicks)
}

func TestLoadLayersFileEnvAndArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("time_slice_ms = 75\nscheduling_strategy = \"priority\"\n"), 0o644))

	environ := []string{"RUNTIMECTL__SCHEDULING_STRATEGY=load-based", "IRRELEVANT=ignored"}
	args := []string{"time_slice_ms=200"}

	cfg, err := Load(path, environ, args)
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.TimeSliceMs, "CLI args win over env and file")
	assert.Equal(t, "load-based", cfg.SchedulingStrategy, "env wins over file")
	assert.Equal(t, 1000, cfg.ErrorManagerMaxSize, "untouched keys keep the default")
}

func TestLoadIgnoresMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Default().TimeSliceMs, cfg.TimeSliceMs)
}

func TestFacetConfigDefaultsToEmptyMap(t *testing.T) {
	cfg := Default()
	assert.Equal(t, map[string]any{}, cfg.FacetConfig("storage"))
}
