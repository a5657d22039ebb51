// Package config implements the coordinator's layered Configuration: an
// optional TOML file, then environment variables, then CLI-style key=value
// overrides, later layers winning — a flat schema of scheduler, error
// manager, and per-facet-kind settings rather than module-scoped keys.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is stripped from environment variables considered for layer 2.
const EnvPrefix = "RUNTIMECTL__"

// Configuration is the coordinator's bootstrap configuration object, plus
// per-facet-kind nested configs.
type Configuration struct {
	TimeSliceMs         int    `toml:"time_slice_ms"`
	SchedulingStrategy  string `toml:"scheduling_strategy"`
	ErrorManagerMaxSize int    `toml:"error_manager_max_size"`
	Debug               bool   `toml:"debug"`

	// AdaptiveUtilizationThreshold and AdaptiveConsecutiveTicks parameterise
	// the adaptive scheduling strategy's round-robin -> load-based switch.
	AdaptiveUtilizationThreshold float64 `toml:"adaptive_utilization_threshold"`
	AdaptiveConsecutiveTicks     int     `toml:"adaptive_consecutive_ticks"`

	// Facets holds nested per-facet-kind configuration blocks, e.g.
	// Facets["storage"]["dsn"].
	Facets map[string]map[string]any `toml:"facets"`
}

// Default returns the baseline configuration:
// {timeSliceMs:50, schedulingStrategy:'round-robin', errorManagerMaxSize:1000,
// debug:false}.
func Default() Configuration {
	return Configuration{
		TimeSliceMs:                  50,
		SchedulingStrategy:           "round-robin",
		ErrorManagerMaxSize:          1000,
		Debug:                        false,
		AdaptiveUtilizationThreshold: 0.75,
		AdaptiveConsecutiveTicks:     3,
		Facets:                       make(map[string]map[string]any),
	}
}

// FacetConfig returns the nested config block for a facet kind, or an empty
// map if none was supplied.
func (c Configuration) FacetConfig(kind string) map[string]any {
	if c.Facets == nil {
		return map[string]any{}
	}
	if m, ok := c.Facets[kind]; ok {
		return m
	}
	return map[string]any{}
}

// Load builds a Configuration by layering, in increasing precedence:
//  1. Default()
//  2. an optional TOML file at filePath (ignored if filePath == "" or the
//     file does not exist)
//  3. environment variables prefixed with EnvPrefix, e.g.
//     RUNTIMECTL__TIME_SLICE_MS=100
//  4. args, a slice of "key=value" strings (as a CLI would supply via
//     repeated --set key=value flags), applied in order
//
// Unknown override keys in layers 3/4 are ignored rather than rejected.
func Load(filePath string, environ []string, args []string) (Configuration, error) {
	cfg := Default()

	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			if _, err := toml.DecodeFile(filePath, &cfg); err != nil {
				return Configuration{}, err
			}
		}
	}
	if cfg.Facets == nil {
		cfg.Facets = make(map[string]map[string]any)
	}

	applyOverride := func(key, value string) {
		switch key {
		case "TIME_SLICE_MS", "time_slice_ms":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.TimeSliceMs = n
			}
		case "SCHEDULING_STRATEGY", "scheduling_strategy":
			cfg.SchedulingStrategy = value
		case "ERROR_MANAGER_MAX_SIZE", "error_manager_max_size":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.ErrorManagerMaxSize = n
			}
		case "DEBUG", "debug":
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.Debug = b
			}
		case "ADAPTIVE_UTILIZATION_THRESHOLD", "adaptive_utilization_threshold":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cfg.AdaptiveUtilizationThreshold = f
			}
		case "ADAPTIVE_CONSECUTIVE_TICKS", "adaptive_consecutive_ticks":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.AdaptiveConsecutiveTicks = n
			}
		}
	}

	for _, env := range environ {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		pair := strings.SplitN(strings.TrimPrefix(env, EnvPrefix), "=", 2)
		if len(pair) == 2 {
			applyOverride(pair[0], pair[1])
		}
	}

	for _, a := range args {
		pair := strings.SplitN(a, "=", 2)
		if len(pair) == 2 {
			applyOverride(pair[0], pair[1])
		}
	}

	return cfg, nil
}
