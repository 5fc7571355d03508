package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aeon/internal/config"
	"aeon/internal/types"
)

func newTestCollector() *Collector {
	return NewCollector(config.DefaultConfig().Telemetry)
}

func TestHealthStartsNeutral(t *testing.T) {
	c := newTestCollector()
	for _, role := range types.AllRoles() {
		assert.Equal(t, 50.0, c.Health(role))
	}
}

func TestRecordOperationImprovesHealthOnSuccess(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < 20; i++ {
		c.RecordOperation(types.RoleStylist, true, 100, 95)
	}
	assert.Greater(t, c.Health(types.RoleStylist), 80.0)
}

func TestRecordOperationDegradesHealthOnFailure(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < 20; i++ {
		c.RecordOperation(types.RoleAnimator, false, 9000, 0)
	}
	assert.Less(t, c.Health(types.RoleAnimator), 30.0)
}

func TestHealthClampedUnderExtremeLatency(t *testing.T) {
	c := newTestCollector()
	c.RecordOperation(types.RoleShaderSmith, true, 10_000_000, 100)
	h := c.Health(types.RoleShaderSmith)
	assert.GreaterOrEqual(t, h, 0.0)
	assert.LessOrEqual(t, h, 100.0)
}

func TestEMASmoothing(t *testing.T) {
	c := newTestCollector()
	c.RecordOperation(types.RoleCopywriter, true, 1000, 80)
	c.RecordOperation(types.RoleCopywriter, true, 2000, 80)
	// First sample seeds the EMA, second blends at alpha=0.1.
	assert.InDelta(t, 1100, c.Latency(types.RoleCopywriter), 0.001)
}

func TestErrorRateTracksFailures(t *testing.T) {
	c := newTestCollector()
	c.RecordOperation(types.RoleA11y, false, 100, 0)
	assert.Equal(t, 1.0, c.ErrorRate(types.RoleA11y))
	for i := 0; i < 50; i++ {
		c.RecordOperation(types.RoleA11y, true, 100, 90)
	}
	assert.Less(t, c.ErrorRate(types.RoleA11y), 0.05)
}

func TestCriticalLatencyAlertFires(t *testing.T) {
	c := newTestCollector()
	ch := make(chan Alert, 16)
	c.Subscribe(ch)

	for i := 0; i < 10; i++ {
		c.RecordOperation(types.RoleIntegrator, true, 50_000, 90)
	}

	require.NotEmpty(t, c.Alerts())
	var sawCriticalLatency bool
	for _, a := range c.Alerts() {
		if a.Metric == MetricLatency && a.Severity == SeverityCritical {
			sawCriticalLatency = true
		}
	}
	assert.True(t, sawCriticalLatency)

	select {
	case a := <-ch:
		assert.Equal(t, types.RoleIntegrator, a.Role)
	default:
		t.Fatal("no alert delivered to subscriber")
	}
}

func TestAlertHistoryIsBounded(t *testing.T) {
	cfg := config.DefaultConfig().Telemetry
	cfg.AlertHistorySize = 5
	c := NewCollector(cfg)
	for i := 0; i < 40; i++ {
		c.RecordOperation(types.RoleValidator, false, 50_000, 0)
	}
	assert.LessOrEqual(t, len(c.Alerts()), 5)
}

func TestUnknownRoleIsDropped(t *testing.T) {
	c := newTestCollector()
	c.RecordOperation(types.AgentRole("impostor"), true, 100, 90)
	assert.Equal(t, 0.0, c.Health(types.AgentRole("impostor")))
}

func TestSamplerFillsRingBuffer(t *testing.T) {
	cfg := config.DefaultConfig().Telemetry
	cfg.SampleInterval = "5ms"
	cfg.HistorySize = 10
	c := NewCollector(cfg)

	c.RecordOperation(types.RoleArchitect, true, 200, 85)
	c.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	c.Stop()

	samples := c.Samples(types.RoleArchitect)
	require.NotEmpty(t, samples)
	// Bounded at HistorySize even though far more ticks elapsed.
	assert.LessOrEqual(t, len(samples), 10)
	last := samples[len(samples)-1]
	assert.Equal(t, types.RoleArchitect, last.Role)
	assert.InDelta(t, 200, last.LatencyMs, 0.001)
}

func TestSamplerStartStopDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newTestCollector()
	c.Start(context.Background())
	c.Stop()
	c.Stop() // Second stop is a no-op.
}

func TestSamplerStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := newTestCollector()
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	time.Sleep(100 * time.Millisecond)
	// Stop after context cancellation must not hang on doneCh.
	c.Stop()
}

func TestOutcomeEntropy(t *testing.T) {
	assert.Equal(t, 0.0, outcomeEntropy(nil))
	assert.Equal(t, 0.0, outcomeEntropy([]bool{true, true, true, true}))
	assert.InDelta(t, 1.0, outcomeEntropy([]bool{true, false, true, false}), 0.001)
}
