// Package postmortem analyzes failed or imperfect requests: it classifies
// the dominant failure cause, derives severity, proposes immediate and
// preventive actions, and can trigger a constellation rewrite that evolves
// the implicated roles.
package postmortem

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/evolution"
	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/types"
)

// Severity is the 5-point post-mortem scale.
type Severity string

const (
	SeverityNone         Severity = "none"
	SeverityMinor        Severity = "minor"
	SeverityModerate     Severity = "moderate"
	SeveritySevere       Severity = "severe"
	SeverityCatastrophic Severity = "catastrophic"
)

// PostMortem is the analysis record for one sub-threshold request.
type PostMortem struct {
	ID                string            `json:"id"`
	RequestID         string            `json:"request_id"`
	Timestamp         time.Time         `json:"timestamp"`
	OriginalRequest   string            `json:"original_request"`
	RootCause         string            `json:"root_cause"`
	FailureKind       types.FailureKind `json:"failure_kind"`
	Severity          Severity          `json:"severity"`
	ImplicatedRoles   []types.AgentRole `json:"implicated_roles"`
	ImmediateActions  []string          `json:"immediate_actions"`
	PreventiveActions []string          `json:"preventive_actions"`
	LessonsLearned    []string          `json:"lessons_learned"`
	OutcomeScore      float64           `json:"outcome_score"`
}

// Change is one structured modification proposed by a rewrite.
type Change struct {
	Role      types.AgentRole `json:"role"`
	Kind      string          `json:"kind"` // ideology, priority, constraint, capability, replacement
	Rationale string          `json:"rationale"`
}

// Rewrite is a versioned constellation rewrite derived from a post-mortem.
type Rewrite struct {
	ID                   string    `json:"id"`
	PostMortemID         string    `json:"post_mortem_id"`
	Version              int       `json:"version"`
	Timestamp            time.Time `json:"timestamp"`
	Changes              []Change  `json:"changes"`
	EstimatedImprovement float64   `json:"estimated_improvement"` // Capped at 0.9
}

// causeRule maps error-message substrings to root cause and advice. Rules
// are ordered: the first match wins.
type causeRule struct {
	substrings []string
	rootCause  string
	kind       types.FailureKind
	immediate  []string
	preventive []string
	lesson     string
}

func causeRules() []causeRule {
	return []causeRule{
		{
			substrings: []string{"timeout", "deadline", "timed out"},
			rootCause:  "generation latency exceeded the tier timeout",
			kind:       types.FailTimeout,
			immediate:  []string{"raise the tier timeout for the implicated role", "split the task into smaller decomposition units"},
			preventive: []string{"decompose large tasks before they reach a single generation call"},
			lesson:     "long-running generations need earlier decomposition, not longer timeouts",
		},
		{
			substrings: []string{"memory", "oom", "heap"},
			rootCause:  "memory ceiling reached during generation",
			kind:       types.FailMemoryExceeded,
			immediate:  []string{"stream output instead of buffering the full artifact"},
			preventive: []string{"cap artifact size per task and emit multiple smaller artifacts"},
			lesson:     "buffer-everything output handling does not survive large deliverables",
		},
		{
			substrings: []string{"rate limit", "too many requests", "429", "quota"},
			rootCause:  "provider rate limit hit",
			kind:       types.FailRateLimit,
			immediate:  []string{"increase backoff between generation calls"},
			preventive: []string{"shrink the frontier so fewer tasks generate concurrently"},
			lesson:     "frontier width must respect the provider's concurrency budget",
		},
		{
			substrings: []string{"type", "undefined", "not defined", "nil pointer"},
			rootCause:  "generated output referenced undefined symbols",
			kind:       types.FailInvalidOutput,
			immediate:  []string{"tighten the validator's structural checks for undefined references"},
			preventive: []string{"include the dependency artifact contents in downstream prompts"},
			lesson:     "specialists need the actual upstream artifacts, not just their names",
		},
		{
			substrings: []string{"network", "connection", "unavailable", "refused"},
			rootCause:  "transport failure reaching the generation service",
			kind:       types.FailGeneration,
			immediate:  []string{"retry with exponential backoff"},
			preventive: []string{"add a standby generation endpoint"},
			lesson:     "a single generation endpoint is a single point of failure",
		},
	}
}

// Engine creates post-mortems and constellation rewrites.
type Engine struct {
	mu          sync.Mutex
	evo         *evolution.Engine
	ledger      *ledger.Ledger
	postMortems []PostMortem
	rewrites    []Rewrite
	patterns    map[string]*FailurePattern
	version     int
}

// NewEngine wires the post-mortem engine to the evolution engine and ledger.
func NewEngine(evo *evolution.Engine, led *ledger.Ledger) *Engine {
	return &Engine{
		evo:      evo,
		ledger:   led,
		patterns: make(map[string]*FailurePattern),
	}
}

// Create analyzes one failed or imperfect request. The outcome is optional:
// severity falls back to the failure kind when no outcome exists.
func (e *Engine) Create(requestID, originalRequest string, result *types.TaskResult, outcome *types.UserOutcome) PostMortem {
	errMsg := ""
	implicated := []types.AgentRole{}
	if result != nil {
		errMsg = result.Error
		if result.Role.Valid() {
			implicated = append(implicated, result.Role)
		}
	}

	rule := classifyCause(errMsg)
	pm := PostMortem{
		ID:              uuid.New().String(),
		RequestID:       requestID,
		Timestamp:       time.Now(),
		OriginalRequest: originalRequest,
		RootCause:       rule.rootCause,
		FailureKind:     rule.kind,
		ImplicatedRoles: implicated,
		LessonsLearned:  []string{rule.lesson},
	}
	pm.ImmediateActions = append(pm.ImmediateActions, rule.immediate...)
	pm.PreventiveActions = append(pm.PreventiveActions, rule.preventive...)

	if outcome != nil {
		pm.OutcomeScore = outcome.Score
		pm.Severity = severityFromScore(outcome.Score)
	} else {
		pm.Severity = severityFromKind(rule.kind)
	}

	if pattern := e.recordPattern(errMsg); pattern != nil && pattern.Occurrences > 1 {
		pm.PreventiveActions = append(pm.PreventiveActions,
			fmt.Sprintf("recurring pattern %q seen %d times (confidence %.2f); prioritize its preventive action",
				pattern.Name, pattern.Occurrences, pattern.Confidence))
	}

	e.mu.Lock()
	e.postMortems = append(e.postMortems, pm)
	e.mu.Unlock()

	e.ledger.AppendJSON(ledger.EventPostMortem, types.RoleNexus, map[string]any{
		"post_mortem_id": pm.ID,
		"request_id":     requestID,
		"severity":       pm.Severity,
		"root_cause":     pm.RootCause,
	})
	logging.PostMortem("Post-mortem %s: %s (severity=%s, roles=%v)", pm.ID, pm.RootCause, pm.Severity, pm.ImplicatedRoles)
	return pm
}

// classifyCause applies the ordered substring rules; the first match wins.
func classifyCause(errMsg string) causeRule {
	msg := strings.ToLower(errMsg)
	for _, rule := range causeRules() {
		for _, sub := range rule.substrings {
			if strings.Contains(msg, sub) {
				return rule
			}
		}
	}
	return causeRule{
		rootCause:  "unclassified generation failure",
		kind:       types.FailGeneration,
		immediate:  []string{"inspect the ledger trail for the failing task"},
		preventive: []string{"extend the failure taxonomy when this cause recurs"},
		lesson:     "unclassified failures indicate a gap in the error taxonomy",
	}
}

// severityFromScore maps an outcome score onto the 5-point scale.
func severityFromScore(score float64) Severity {
	switch {
	case score >= 100:
		return SeverityNone
	case score >= 80:
		return SeverityMinor
	case score >= 60:
		return SeverityModerate
	case score >= 30:
		return SeveritySevere
	default:
		return SeverityCatastrophic
	}
}

// severityFromKind derives severity when no outcome exists.
func severityFromKind(kind types.FailureKind) Severity {
	switch kind {
	case types.FailTimeout, types.FailRateLimit:
		return SeverityModerate
	case types.FailMemoryExceeded, types.FailInfiniteLoop:
		return SeveritySevere
	case types.FailNegativeOutcome:
		return SeverityCatastrophic
	default:
		return SeverityModerate
	}
}

// RewriteConstellation evolves every implicated role one step and records
// the structured changes as a versioned rewrite.
func (e *Engine) RewriteConstellation(pm PostMortem) Rewrite {
	feedback := &evolution.Feedback{
		Score:        pm.OutcomeScore,
		Catastrophic: pm.Severity == SeverityCatastrophic,
	}

	var changes []Change
	for _, role := range pm.ImplicatedRoles {
		e.evo.Evolve(role, feedback)
		e.ledger.Append(ledger.EventEvolutionStep, role,
			fmt.Sprintf("rewrite from post-mortem %s", pm.ID))
		changes = append(changes,
			Change{
				Role:      role,
				Kind:      "ideology",
				Rationale: fmt.Sprintf("evolved one generation in response to: %s", pm.RootCause),
			},
			Change{
				Role:      role,
				Kind:      "priority",
				Rationale: "re-weighted priorities toward the failing concern",
			},
		)
		if pm.Severity == SeverityCatastrophic {
			e.evo.Reset(role)
			changes = append(changes, Change{
				Role:      role,
				Kind:      "replacement",
				Rationale: "catastrophic outcome: population reset to generation zero defaults",
			})
		}
	}

	// Improvement estimate grows with severity and change count, capped.
	improvement := 0.1*float64(len(changes)) + severityBonus(pm.Severity)
	if improvement > 0.9 {
		improvement = 0.9
	}

	e.mu.Lock()
	e.version++
	rw := Rewrite{
		ID:                   uuid.New().String(),
		PostMortemID:         pm.ID,
		Version:              e.version,
		Timestamp:            time.Now(),
		Changes:              changes,
		EstimatedImprovement: improvement,
	}
	e.rewrites = append(e.rewrites, rw)
	e.mu.Unlock()

	logging.PostMortem("Rewrite v%d from post-mortem %s: %d changes, estimated improvement %.2f",
		rw.Version, pm.ID, len(changes), improvement)
	return rw
}

func severityBonus(s Severity) float64 {
	switch s {
	case SeverityCatastrophic:
		return 0.3
	case SeveritySevere:
		return 0.2
	case SeverityModerate:
		return 0.1
	default:
		return 0
	}
}

// PostMortems returns a copy of all recorded post-mortems.
func (e *Engine) PostMortems() []PostMortem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]PostMortem(nil), e.postMortems...)
}

// Rewrites returns a copy of all constellation rewrites.
func (e *Engine) Rewrites() []Rewrite {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Rewrite(nil), e.rewrites...)
}
