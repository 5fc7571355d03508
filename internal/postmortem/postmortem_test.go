package postmortem

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/config"
	"aeon/internal/evolution"
	"aeon/internal/ledger"
	"aeon/internal/registry"
	"aeon/internal/types"
)

func newTestEngine() (*Engine, *ledger.Ledger) {
	led := ledger.New()
	evo := evolution.NewEngine(config.DefaultConfig().Evolution, registry.New())
	return NewEngine(evo, led), led
}

func failedResult(role types.AgentRole, errMsg string) *types.TaskResult {
	return &types.TaskResult{
		TaskID:  "task-1",
		Role:    role,
		Success: false,
		Error:   errMsg,
	}
}

func TestCreateClassifiesTimeout(t *testing.T) {
	e, led := newTestEngine()

	pm := e.Create("req-1", "build a landing page",
		failedResult(types.RoleStylist, "generation timed out after 15s"), nil)

	assert.Equal(t, types.FailTimeout, pm.FailureKind)
	assert.Contains(t, pm.RootCause, "latency")
	assert.NotEmpty(t, pm.ImmediateActions)
	assert.NotEmpty(t, pm.PreventiveActions)
	require.NotEmpty(t, pm.LessonsLearned)
	assert.Equal(t, []types.AgentRole{types.RoleStylist}, pm.ImplicatedRoles)
	require.NoError(t, led.Verify())
}

func TestCreateOrderedRulesFirstMatchWins(t *testing.T) {
	e, _ := newTestEngine()
	// Contains both "timeout" and "rate limit"; the timeout rule is ordered
	// first and must win.
	pm := e.Create("req-2", "req",
		failedResult(types.RoleAnimator, "timeout while waiting for rate limit window"), nil)
	assert.Equal(t, types.FailTimeout, pm.FailureKind)
}

func TestCreateUnclassifiedFallsBackToGeneric(t *testing.T) {
	e, _ := newTestEngine()
	pm := e.Create("req-3", "req", failedResult(types.RoleCopywriter, "mysterious anomaly"), nil)
	assert.Equal(t, types.FailGeneration, pm.FailureKind)
	assert.Contains(t, pm.RootCause, "unclassified")
}

func TestSeverityFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{100, SeverityNone},
		{85, SeverityMinor},
		{65, SeverityModerate},
		{40, SeveritySevere},
		{10, SeverityCatastrophic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, severityFromScore(tt.score), "score %v", tt.score)
	}
}

func TestLowOutcomeYieldsSevereWithLessons(t *testing.T) {
	e, _ := newTestEngine()
	outcome := &types.UserOutcome{RequestID: "req-4", Score: 40}
	pm := e.Create("req-4", "build a shop",
		failedResult(types.RoleIntegrator, "undefined import in merged bundle"), outcome)

	assert.Contains(t, []Severity{SeveritySevere, SeverityCatastrophic}, pm.Severity)
	assert.NotEmpty(t, pm.LessonsLearned)
	assert.Equal(t, 40.0, pm.OutcomeScore)
}

func TestSeverityWithoutOutcomeDerivesFromKind(t *testing.T) {
	e, _ := newTestEngine()
	pm := e.Create("req-5", "req", failedResult(types.RoleShaderSmith, "out of memory"), nil)
	assert.Equal(t, SeveritySevere, pm.Severity)
}

func TestRewriteConstellation(t *testing.T) {
	e, _ := newTestEngine()
	pm := e.Create("req-6", "req",
		failedResult(types.RoleStylist, "timeout"), &types.UserOutcome{Score: 40})

	rw := e.RewriteConstellation(pm)
	assert.Equal(t, 1, rw.Version)
	assert.NotEmpty(t, rw.Changes)
	assert.LessOrEqual(t, rw.EstimatedImprovement, 0.9)
	for _, ch := range rw.Changes {
		assert.NotEmpty(t, ch.Rationale)
		assert.Equal(t, types.RoleStylist, ch.Role)
	}

	rw2 := e.RewriteConstellation(pm)
	assert.Equal(t, 2, rw2.Version, "rewrites are versioned")
}

func TestCatastrophicRewriteResetsPopulation(t *testing.T) {
	e, _ := newTestEngine()
	pm := e.Create("req-7", "req",
		failedResult(types.RoleValidator, "timeout"), &types.UserOutcome{Score: 5})
	require.Equal(t, SeverityCatastrophic, pm.Severity)

	rw := e.RewriteConstellation(pm)
	var sawReplacement bool
	for _, ch := range rw.Changes {
		if ch.Kind == "replacement" {
			sawReplacement = true
		}
	}
	assert.True(t, sawReplacement)
}

func TestImprovementCappedAtPointNine(t *testing.T) {
	e, _ := newTestEngine()
	pm := PostMortem{
		ID:       "pm-x",
		Severity: SeverityCatastrophic,
		ImplicatedRoles: []types.AgentRole{
			types.RoleArchitect, types.RoleStylist, types.RoleAnimator,
			types.RoleShaderSmith, types.RoleCopywriter,
		},
		OutcomeScore: 0,
	}
	rw := e.RewriteConstellation(pm)
	assert.Equal(t, 0.9, rw.EstimatedImprovement)
}

func TestRecurringPatternConfidenceGrowsAndCaps(t *testing.T) {
	e, _ := newTestEngine()

	for i := 0; i < 12; i++ {
		e.Create(fmt.Sprintf("req-%d", i), "req",
			failedResult(types.RoleResponsive, "HTTP 429 too many requests"), nil)
	}

	patterns := e.Patterns()
	require.NotEmpty(t, patterns)
	top := patterns[0]
	assert.Equal(t, "provider_throttling", top.Name)
	assert.Equal(t, 12, top.Occurrences)
	assert.Less(t, top.Confidence, 1.0)
	assert.Equal(t, patternConfidenceCap, top.Confidence)
}

func TestPatternsRankedByFrequency(t *testing.T) {
	e, _ := newTestEngine()
	for i := 0; i < 3; i++ {
		e.Create("r", "req", failedResult(types.RoleA11y, "connection refused"), nil)
	}
	e.Create("r", "req", failedResult(types.RoleA11y, "out of memory"), nil)

	patterns := e.Patterns()
	require.Len(t, patterns, 2)
	assert.Equal(t, "transport_flakiness", patterns[0].Name)
	assert.Equal(t, "memory_pressure", patterns[1].Name)
}

func TestRecurringPatternFeedsPreventiveActions(t *testing.T) {
	e, _ := newTestEngine()
	e.Create("r1", "req", failedResult(types.RoleAnimator, "generation timed out"), nil)
	pm := e.Create("r2", "req", failedResult(types.RoleAnimator, "deadline exceeded"), nil)

	var mentionsPattern bool
	for _, action := range pm.PreventiveActions {
		if strings.Contains(action, "recurring pattern") {
			mentionsPattern = true
		}
	}
	assert.True(t, mentionsPattern)
}
