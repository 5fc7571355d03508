package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100.0, cfg.Outcome.PerfectionThreshold)
	assert.Equal(t, 20, cfg.Evolution.PopulationSize)
	assert.Equal(t, 1000, cfg.Telemetry.HistorySize)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "aeon", cfg.Name)
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".aeon", "config.yaml")

	cfg := DefaultConfig()
	cfg.Outcome.PerfectionThreshold = 85
	cfg.Failover.Cooldown = "10s"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 85.0, loaded.Outcome.PerfectionThreshold)
	assert.Equal(t, "10s", loaded.Failover.Cooldown)
}

func TestLoadRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := DefaultConfig()
	cfg.Outcome.WeightFunctional = 0.9 // Sum now exceeds 1.0
	require.NoError(t, cfg.Save(path))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outcome weights")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AEON_PERFECTION_THRESHOLD", "90")
	t.Setenv("AEON_DEBUG", "true")
	t.Setenv("AEON_MODEL", "gemini-2.5-pro")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Outcome.PerfectionThreshold)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, "gemini-2.5-pro", cfg.Generation.Model)
}

func TestEnvOverrideIgnoresOutOfRangeThreshold(t *testing.T) {
	t.Setenv("AEON_PERFECTION_THRESHOLD", "250")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.Outcome.PerfectionThreshold)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("garbage", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-3s", time.Minute))
}

func TestTierTimeoutsIncreaseUpTheLadder(t *testing.T) {
	f := DefaultConfig().Failover
	prev := time.Duration(0)
	for ordinal := 0; ordinal < 5; ordinal++ {
		d := f.TierTimeout(ordinal)
		assert.Greater(t, d, prev, "tier %d timeout should exceed tier %d", ordinal, ordinal-1)
		prev = d
	}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha", func(c *Config) { c.Telemetry.SmoothingAlpha = 0 }},
		{"history", func(c *Config) { c.Telemetry.HistorySize = 0 }},
		{"failures", func(c *Config) { c.Failover.MaxConsecutiveFailures = 0 }},
		{"population", func(c *Config) { c.Evolution.PopulationSize = 1 }},
		{"elite", func(c *Config) { c.Evolution.EliteCount = 50 }},
		{"blend", func(c *Config) { c.Learning.FitnessBlend = 1.5 }},
		{"threshold", func(c *Config) { c.Outcome.PerfectionThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
