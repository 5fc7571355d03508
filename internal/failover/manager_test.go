package failover

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/config"
	"aeon/internal/generation"
	"aeon/internal/ledger"
	"aeon/internal/telemetry"
	"aeon/internal/types"
)

func newTestManager(mutate func(*config.FailoverConfig)) (*Manager, *ledger.Ledger) {
	cfg := config.DefaultConfig()
	cfg.Failover.PrimaryTimeout = "200ms"
	cfg.Failover.StandbyTimeout = "200ms"
	cfg.Failover.FallbackATimeout = "200ms"
	cfg.Failover.FallbackBTimeout = "200ms"
	cfg.Failover.FallbackCTimeout = "200ms"
	cfg.Failover.Cooldown = "100ms"
	if mutate != nil {
		mutate(&cfg.Failover)
	}
	led := ledger.New()
	collector := telemetry.NewCollector(cfg.Telemetry)
	return NewManager(cfg.Failover, collector, led), led
}

func okResult(role types.AgentRole, quality float64) *types.TaskResult {
	return &types.TaskResult{
		TaskID:  "task-1",
		Role:    role,
		Success: true,
		Output:  "<main>done</main>",
		Metrics: types.TaskMetrics{QualityScore: quality},
	}
}

func TestSuccessOnPrimaryLeavesCircuitUntouched(t *testing.T) {
	m, _ := newTestManager(nil)

	res, err := m.ExecuteWithFailover(context.Background(), types.RoleStylist,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			return okResult(types.RoleStylist, 90), nil
		})

	require.NoError(t, err)
	assert.Equal(t, types.TierPrimary, res.Tier)
	assert.Empty(t, m.Transitions())

	tier, open := m.CircuitState(types.RoleStylist)
	assert.Equal(t, types.TierPrimary, tier)
	assert.False(t, open)
}

func TestEscalatesToStandbyAndRecords(t *testing.T) {
	m, led := newTestManager(nil)
	m.SaveCheckpoint(types.RoleAnimator, "task-1", StateBlob{PartialOutput: "halfway"})

	calls := 0
	res, err := m.ExecuteWithFailover(context.Background(), types.RoleAnimator,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			calls++
			if tier == types.TierPrimary {
				return nil, generation.ErrInvalidOutput
			}
			return okResult(types.RoleAnimator, 70), nil
		})

	require.NoError(t, err)
	assert.Equal(t, types.TierStandby, res.Tier)
	assert.Equal(t, 2, calls)

	// Failed attempt, escalation, and the successful recovery transition.
	var recovered bool
	for _, tr := range m.Transitions() {
		if tr.Success && tr.From == types.TierPrimary && tr.To == types.TierStandby {
			recovered = true
			assert.GreaterOrEqual(t, tr.LatencyMicros, int64(0))
		}
	}
	assert.True(t, recovered, "expected a successful PRIMARY->STANDBY transition")
	require.NoError(t, led.Verify())
}

func TestTiersNeverRegressWithinOneExecution(t *testing.T) {
	m, _ := newTestManager(func(f *config.FailoverConfig) { f.MaxConsecutiveFailures = 50 })

	var seen []types.Tier
	_, err := m.ExecuteWithFailover(context.Background(), types.RoleShaderSmith,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			seen = append(seen, tier)
			return nil, fmt.Errorf("synthetic invalid output: malformed scene graph")
		})
	require.Error(t, err)

	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "tier regressed mid-execution")
	}
	assert.Equal(t, types.TierFallbackC, seen[len(seen)-1])
}

func TestCircuitOpensAfterMaxConsecutiveFailures(t *testing.T) {
	m, _ := newTestManager(nil) // MaxConsecutiveFailures = 5

	calls := 0
	_, err := m.ExecuteWithFailover(context.Background(), types.RoleCopywriter,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			calls++
			return nil, generation.ErrInvalidOutput
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllTiersExhausted))
	assert.Equal(t, 5, calls)

	_, open := m.CircuitState(types.RoleCopywriter)
	assert.True(t, open)

	// Within the cooldown window attempts fail fast without invoking any tier.
	before := calls
	_, err = m.ExecuteWithFailover(context.Background(), types.RoleCopywriter,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			calls++
			return okResult(types.RoleCopywriter, 90), nil
		})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, before, calls)

	// After cooldown the circuit half-opens and probes PRIMARY.
	time.Sleep(150 * time.Millisecond)
	var probeTier types.Tier = -1
	res, err := m.ExecuteWithFailover(context.Background(), types.RoleCopywriter,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			probeTier = tier
			return okResult(types.RoleCopywriter, 90), nil
		})
	require.NoError(t, err)
	assert.Equal(t, types.TierPrimary, probeTier)
	assert.Equal(t, types.TierPrimary, res.Tier)
}

func TestInterleavedFailuresDoNotOpenCircuit(t *testing.T) {
	m, _ := newTestManager(nil) // MaxConsecutiveFailures = 5

	// Each execution fails once and then succeeds. A clean success breaks
	// the streak, so even many such executions never quarantine the role.
	for i := 0; i < 8; i++ {
		failed := false
		res, err := m.ExecuteWithFailover(context.Background(), types.RoleStylist,
			func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
				if !failed {
					failed = true
					return nil, generation.ErrTimeout
				}
				return okResult(types.RoleStylist, 85), nil
			})
		require.NoError(t, err, "execution %d", i)
		assert.Equal(t, types.TierPrimary, res.Tier, "execution %d", i)
	}

	tier, open := m.CircuitState(types.RoleStylist)
	assert.False(t, open)
	assert.Equal(t, types.TierPrimary, tier)
}

func TestPersistentSoftFailureWalksEntireLadder(t *testing.T) {
	m, _ := newTestManager(nil) // MaxConsecutiveFailures = 5

	var seen []types.Tier
	_, err := m.ExecuteWithFailover(context.Background(), types.RoleAnimator,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			seen = append(seen, tier)
			return nil, errors.New("upstream deadline exceeded")
		})

	// The ladder runs to the bottom before anything surfaces: the terminal
	// condition is exhaustion, never a mid-ladder circuit trip.
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllTiersExhausted))
	assert.False(t, errors.Is(err, ErrCircuitOpen))
	assert.Contains(t, seen, types.TierFallbackB)
	assert.Contains(t, seen, types.TierFallbackC)

	_, open := m.CircuitState(types.RoleAnimator)
	assert.True(t, open)
}

func TestDegradedRecoveryRehydratesCheckpoint(t *testing.T) {
	m, _ := newTestManager(nil)
	m.SaveCheckpoint(types.RoleIntegrator, "task-2", StateBlob{
		TaskContext:   map[string]string{"task-1": "<header>site</header>"},
		PartialOutput: "halfway",
	})

	res, err := m.ExecuteWithFailover(context.Background(), types.RoleIntegrator,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			if tier == types.TierPrimary {
				return nil, generation.ErrInvalidOutput
			}
			return okResult(types.RoleIntegrator, 75), nil
		})

	require.NoError(t, err)
	assert.Equal(t, types.TierStandby, res.Tier)
	assert.Equal(t, "<header>site</header>", res.RestoredContext["task-1"])
}

func TestAllTiersExhaustedOpensCircuit(t *testing.T) {
	m, _ := newTestManager(func(f *config.FailoverConfig) { f.MaxConsecutiveFailures = 100 })

	_, err := m.ExecuteWithFailover(context.Background(), types.RoleResponsive,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			return nil, errors.New("malformed breakpoint table")
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllTiersExhausted))
	_, open := m.CircuitState(types.RoleResponsive)
	assert.True(t, open)
}

func TestTierTimeoutClassifiedAsTimeout(t *testing.T) {
	m, _ := newTestManager(func(f *config.FailoverConfig) {
		f.PrimaryTimeout = "20ms"
		f.MaxConsecutiveFailures = 1
	})

	_, err := m.ExecuteWithFailover(context.Background(), types.RoleA11y,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return okResult(types.RoleA11y, 90), nil
			}
		})
	require.Error(t, err)

	trs := m.Transitions()
	require.NotEmpty(t, trs)
	assert.Equal(t, types.FailTimeout, trs[0].FailureKind)
}

func TestNilResultWithoutErrorIsInvalidOutput(t *testing.T) {
	m, _ := newTestManager(func(f *config.FailoverConfig) { f.MaxConsecutiveFailures = 1 })

	_, err := m.ExecuteWithFailover(context.Background(), types.RoleValidator,
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			return nil, nil
		})
	require.Error(t, err)

	trs := m.Transitions()
	require.NotEmpty(t, trs)
	assert.Equal(t, types.FailInvalidOutput, trs[0].FailureKind)
}

func TestUnknownRoleIsRejected(t *testing.T) {
	m, _ := newTestManager(nil)
	_, err := m.ExecuteWithFailover(context.Background(), types.AgentRole("impostor"),
		func(ctx context.Context, tier types.Tier) (*types.TaskResult, error) {
			return okResult("impostor", 50), nil
		})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want types.FailureKind
	}{
		{generation.ErrTimeout, types.FailTimeout},
		{context.DeadlineExceeded, types.FailTimeout},
		{generation.ErrRateLimited, types.FailRateLimit},
		{generation.ErrInvalidOutput, types.FailInvalidOutput},
		{errors.New("HTTP 429 too many requests"), types.FailRateLimit},
		{errors.New("out of memory while rendering"), types.FailMemoryExceeded},
		{errors.New("infinite loop detected in animation graph"), types.FailInfiniteLoop},
		{errors.New("dependency not found: styles.css"), types.FailDependencyMissing},
		{errors.New("parse error near token"), types.FailInvalidOutput},
		{errors.New("something else entirely"), types.FailGeneration},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "error: %v", tt.err)
	}
}
