// Package types defines the shared vocabulary of the AEON constellation:
// the fixed agent roster, the failover tier ladder, lifecycle states, the
// failure taxonomy, and the result/outcome shapes exchanged between the
// orchestration components.
package types

import (
	"time"
)

// =============================================================================
// AGENT ROSTER
// =============================================================================

// AgentRole identifies one of the ten fixed agents in the constellation.
// The roster is closed: every role-dispatch site switches exhaustively over
// these constants so adding or removing a role is a compile-visible change.
type AgentRole string

const (
	RoleNexus       AgentRole = "nexus"       // Meta-controller, owns the request lifecycle
	RoleArchitect   AgentRole = "architect"   // Structural design (layout skeleton, routing)
	RoleStylist     AgentRole = "stylist"     // UI/visual design, styling systems
	RoleAnimator    AgentRole = "animator"    // Motion design, transitions
	RoleShaderSmith AgentRole = "shadersmith" // 3D scenes, shaders, GPU work
	RoleCopywriter  AgentRole = "copywriter"  // Content generation
	RoleResponsive  AgentRole = "responsive"  // Adaptive layout, breakpoints
	RoleA11y        AgentRole = "a11y"        // Accessibility
	RoleIntegrator  AgentRole = "integrator"  // Merges specialist output into one deliverable
	RoleValidator   AgentRole = "validator"   // Structural/lint validation of the deliverable
)

// AllRoles returns the full roster in canonical order.
// The first entry is the meta-controller; the rest are specialists.
func AllRoles() []AgentRole {
	return []AgentRole{
		RoleNexus,
		RoleArchitect,
		RoleStylist,
		RoleAnimator,
		RoleShaderSmith,
		RoleCopywriter,
		RoleResponsive,
		RoleA11y,
		RoleIntegrator,
		RoleValidator,
	}
}

// Valid reports whether the role is part of the fixed roster.
func (r AgentRole) Valid() bool {
	switch r {
	case RoleNexus, RoleArchitect, RoleStylist, RoleAnimator, RoleShaderSmith,
		RoleCopywriter, RoleResponsive, RoleA11y, RoleIntegrator, RoleValidator:
		return true
	}
	return false
}

// AgentState is the lifecycle state of an agent.
type AgentState string

const (
	AgentIdle        AgentState = "idle"
	AgentWorking     AgentState = "working"
	AgentDegraded    AgentState = "degraded"    // Operating on a fallback tier
	AgentRecovering  AgentState = "recovering"  // Rehydrating from a checkpoint
	AgentQuarantined AgentState = "quarantined" // Circuit open, rejecting work
)

// =============================================================================
// TIER LADDER
// =============================================================================

// Tier is one rung of the five-tier failover ladder. Within a single circuit
// execution tiers only escalate forward; a circuit regresses to TierPrimary
// only through an explicit half-open after cooldown.
type Tier int

const (
	TierPrimary Tier = iota
	TierStandby
	TierFallbackA
	TierFallbackB
	TierFallbackC
)

// AllTiers returns the ladder in escalation order.
func AllTiers() []Tier {
	return []Tier{TierPrimary, TierStandby, TierFallbackA, TierFallbackB, TierFallbackC}
}

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "PRIMARY"
	case TierStandby:
		return "STANDBY"
	case TierFallbackA:
		return "FALLBACK_A"
	case TierFallbackB:
		return "FALLBACK_B"
	case TierFallbackC:
		return "FALLBACK_C"
	default:
		return "UNKNOWN"
	}
}

// Next returns the next tier up the ladder and whether one exists.
func (t Tier) Next() (Tier, bool) {
	if t >= TierFallbackC {
		return TierFallbackC, false
	}
	return t + 1, true
}

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

// FailureKind classifies a failed task attempt. Every failure is bucketed
// into exactly one kind for escalation policy and post-mortem root cause.
type FailureKind string

const (
	FailTimeout           FailureKind = "TIMEOUT"
	FailRateLimit         FailureKind = "RATE_LIMIT"
	FailInvalidOutput     FailureKind = "INVALID_OUTPUT"
	FailDependencyMissing FailureKind = "DEPENDENCY_MISSING"
	FailInfiniteLoop      FailureKind = "INFINITE_LOOP"
	FailMemoryExceeded    FailureKind = "MEMORY_EXCEEDED"
	FailGeneration        FailureKind = "GENERATION_ERROR"
	FailIntegration       FailureKind = "INTEGRATION_FAILURE"
	FailQualityThreshold  FailureKind = "QUALITY_THRESHOLD"
	FailNegativeOutcome   FailureKind = "NEGATIVE_OUTCOME"
)

// =============================================================================
// TASK RESULTS AND ARTIFACTS
// =============================================================================

// ArtifactType classifies a generated artifact.
type ArtifactType string

const (
	ArtifactCode   ArtifactType = "code"
	ArtifactStyle  ArtifactType = "style"
	ArtifactConfig ArtifactType = "config"
	ArtifactAsset  ArtifactType = "asset"
)

// Artifact is one generated file destined for the final deliverable.
type Artifact struct {
	Type         ArtifactType `json:"type"`
	Path         string       `json:"path"` // Destination path within the deliverable
	Content      string       `json:"content"`
	Dependencies []string     `json:"dependencies,omitempty"` // Paths this artifact requires
}

// TaskMetrics captures the cost of one completed task attempt.
type TaskMetrics struct {
	LatencyMs       float64 `json:"latency_ms"`
	GenerationCalls int     `json:"generation_calls"`
	Retries         int     `json:"retries"`
	QualityScore    float64 `json:"quality_score"` // 0-100
}

// TaskResult is the output of one completed task attempt.
type TaskResult struct {
	TaskID    string      `json:"task_id"`
	Role      AgentRole   `json:"role"`
	Success   bool        `json:"success"`
	Output    string      `json:"output"`
	Artifacts []Artifact  `json:"artifacts,omitempty"`
	Metrics   TaskMetrics `json:"metrics"`
	Tier      Tier        `json:"tier"` // Tier the result was produced on
	Error     string      `json:"error,omitempty"`

	// RestoredContext is the checkpointed task context rehydrated after a
	// mid-execution tier transition, empty otherwise.
	RestoredContext map[string]string `json:"restored_context,omitempty"`
}

// =============================================================================
// IDEOLOGY
// =============================================================================

// Ideology is a role's behavioral profile: what it believes, what it weighs,
// and what it refuses to do. Ideologies seed the evolution engine's gene
// populations and are rewritten by constellation rewrites.
type Ideology struct {
	Role        AgentRole          `json:"role"`
	Beliefs     []string           `json:"beliefs"`     // Prompt-fragment convictions
	Priorities  map[string]float64 `json:"priorities"`  // Named weights, 0.0-1.0
	Constraints map[string]bool    `json:"constraints"` // Hard rules, true = enforced
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (i Ideology) Clone() Ideology {
	out := Ideology{
		Role:        i.Role,
		Beliefs:     append([]string(nil), i.Beliefs...),
		Priorities:  make(map[string]float64, len(i.Priorities)),
		Constraints: make(map[string]bool, len(i.Constraints)),
	}
	for k, v := range i.Priorities {
		out.Priorities[k] = v
	}
	for k, v := range i.Constraints {
		out.Constraints[k] = v
	}
	return out
}

// =============================================================================
// USER OUTCOME
// =============================================================================

// UserOutcome is the per-request composite score returned to the caller.
// Callers must branch on Score/Catastrophic, never on control flow: the
// controller always returns an outcome, even for total failures.
type UserOutcome struct {
	RequestID     string     `json:"request_id"`
	Functional    float64    `json:"functional"`    // 0-100
	Aesthetic     float64    `json:"aesthetic"`     // 0-100
	Performance   float64    `json:"performance"`   // 0-100
	Accessibility float64    `json:"accessibility"` // 0-100
	CodeQuality   float64    `json:"code_quality"`  // 0-100
	Stalls        int        `json:"stalls"`
	Warnings      int        `json:"warnings"`
	ExposedErrors int        `json:"exposed_errors"`
	Score         float64    `json:"score"` // Weighted overall, 0-100
	Catastrophic  bool       `json:"catastrophic"`
	Deliverable   []Artifact `json:"deliverable,omitempty"`
	CompletedAt   time.Time  `json:"completed_at"`
}

// AgentStatus is the externally visible snapshot of one agent.
type AgentStatus struct {
	Role    AgentRole  `json:"role"`
	State   AgentState `json:"state"`
	Tier    Tier       `json:"tier"`
	Fitness float64    `json:"fitness"` // 0-100
}
