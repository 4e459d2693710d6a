package config

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Memory settings from the environment
// =============================================================================

func TestLoadFromEnv_MemorySettings(t *testing.T) {
	tests := []struct {
		name      string
		limit     string
		wantLimit int64
	}{
		{"plain bytes", "1048576", 1 << 20},
		{"short suffix", "512m", 512 << 20},
		{"long suffix", "2GB", 2 << 30},
		{"byte suffix", "4096B", 4096},
		{"spaced", " 3 KB ", 3 << 10},
		{"terabytes", "1T", 1 << 40},
		{"unlimited", "unlimited", 0},
		{"zero", "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GAFFER_MEMORY_LIMIT", tt.limit)
			cfg := LoadFromEnv()
			assert.Equal(t, tt.wantLimit, cfg.Memory.RuntimeLimit)
			assert.Equal(t, tt.limit, cfg.Memory.RuntimeLimitStr)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnv_MalformedMemoryLimit(t *testing.T) {
	for _, limit := range []string{"lots", "1.5GB", "-1G", "GB", "99999999999T"} {
		t.Run(limit, func(t *testing.T) {
			t.Setenv("GAFFER_MEMORY_LIMIT", limit)
			cfg := LoadFromEnv()
			assert.Zero(t, cfg.Memory.RuntimeLimit)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), limit)
		})
	}
}

func TestLoadFromEnv_GCAndPooling(t *testing.T) {
	t.Setenv("GAFFER_GC_PERCENT", "50")
	t.Setenv("GAFFER_POOL_ENABLED", "off")
	t.Setenv("GAFFER_POOL_MAX_SIZE", "128")

	cfg := LoadFromEnv()
	assert.Equal(t, 50, cfg.Memory.GCPercent)
	assert.False(t, cfg.Memory.PoolEnabled)
	assert.Equal(t, 128, cfg.Memory.PoolMaxSize)

	t.Setenv("GAFFER_GC_PERCENT", "often")
	t.Setenv("GAFFER_POOL_ENABLED", "1")
	cfg = LoadFromEnv()
	assert.Equal(t, 100, cfg.Memory.GCPercent, "unparsable falls back to default")
	assert.True(t, cfg.Memory.PoolEnabled)
}

// =============================================================================
// Applying to the runtime
// =============================================================================

func TestApplyRuntimeMemory(t *testing.T) {
	beforeLimit := debug.SetMemoryLimit(-1)

	t.Setenv("GAFFER_MEMORY_LIMIT", "64GB")
	t.Setenv("GAFFER_GC_PERCENT", "75")
	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	restore := cfg.Memory.ApplyRuntimeMemory()
	assert.Equal(t, int64(64<<30), debug.SetMemoryLimit(-1))
	assert.Equal(t, 75, debug.SetGCPercent(75))

	restore()
	assert.Equal(t, beforeLimit, debug.SetMemoryLimit(-1))
}

func TestApplyRuntimeMemory_ZeroValuesLeaveRuntimeAlone(t *testing.T) {
	beforeLimit := debug.SetMemoryLimit(-1)
	beforeGC := debug.SetGCPercent(60)
	defer debug.SetGCPercent(beforeGC)

	restore := (&MemoryConfig{}).ApplyRuntimeMemory()
	defer restore()
	assert.Equal(t, beforeLimit, debug.SetMemoryLimit(-1))
	assert.Equal(t, 60, debug.SetGCPercent(60))
}
