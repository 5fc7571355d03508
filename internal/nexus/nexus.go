// Package nexus is the orchestration controller of the AEON constellation.
// It accepts one natural-language build request, decomposes it into a task
// DAG over the fixed agent roster, drives frontier execution through the
// failover circuits, synthesizes and validates the deliverable, scores the
// outcome, and feeds the result back into the learning and evolution loops.
//
// The controller never propagates an unhandled fault to the caller: any
// unrecoverable error terminates in emergency recovery, which still returns
// a usable (if degraded) outcome.
package nexus

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/config"
	"aeon/internal/evolution"
	"aeon/internal/failover"
	"aeon/internal/generation"
	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/postmortem"
	"aeon/internal/registry"
	"aeon/internal/store"
	"aeon/internal/telemetry"
	"aeon/internal/types"
)

// RequestState is the lifecycle of one request. Terminal states are SCORED
// and EMERGENCY_RECOVERED.
type RequestState string

const (
	StateReceived           RequestState = "RECEIVED"
	StateDecomposed         RequestState = "DECOMPOSED"
	StateExecuting          RequestState = "EXECUTING"
	StateSynthesized        RequestState = "SYNTHESIZED"
	StateValidated          RequestState = "VALIDATED"
	StateScored             RequestState = "SCORED"
	StateEmergencyRecovered RequestState = "EMERGENCY_RECOVERED"
)

// Nexus is the orchestration controller. All collaborators are injected at
// construction; there are no package-level singletons.
type Nexus struct {
	mu        sync.Mutex
	cfg       *config.Config
	reg       *registry.Registry
	collector *telemetry.Collector
	circuits  *failover.Manager
	led       *ledger.Ledger
	gen       generation.Generator
	evo       *evolution.Engine
	coroner   *postmortem.Engine
	db        *store.Store // Optional; nil disables persistence

	agents      map[types.AgentRole]*Agent
	qtable      map[stateKey]float64
	exploration float64
	rng         *rand.Rand
}

// Deps bundles the injected collaborators.
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Collector  *telemetry.Collector
	Circuits   *failover.Manager
	Ledger     *ledger.Ledger
	Generator  generation.Generator
	Evolution  *evolution.Engine
	PostMortem *postmortem.Engine
	Store      *store.Store
}

// New constructs the controller and its agent roster.
func New(d Deps) *Nexus {
	return &Nexus{
		cfg:         d.Config,
		reg:         d.Registry,
		collector:   d.Collector,
		circuits:    d.Circuits,
		led:         d.Ledger,
		gen:         d.Generator,
		evo:         d.Evolution,
		coroner:     d.PostMortem,
		db:          d.Store,
		agents:      buildRoster(d.Registry),
		qtable:      make(map[stateKey]float64),
		exploration: d.Config.Learning.ExplorationRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SubmitRequest runs one request end to end and always returns an outcome.
// Catastrophic failures return a placeholder deliverable with fixed low
// scores; they never surface as an error.
func (n *Nexus) SubmitRequest(ctx context.Context, text string) types.UserOutcome {
	requestID := uuid.New().String()
	timer := logging.StartTimer(logging.CategoryNexus, "SubmitRequest "+requestID)
	defer timer.StopWithInfo()

	n.transition(requestID, StateReceived, text)
	if n.db != nil {
		n.db.SaveRequest(requestID, text)
	}

	tasks, err := decompose(requestID, text, n.reg)
	if err != nil {
		// Cycles are a decomposition defect, fatal and never retried.
		return n.emergencyRecovery(requestID, text, nil, err)
	}
	n.transition(requestID, StateDecomposed, describeTasks(tasks))

	results, err := n.execute(ctx, requestID, text, tasks)
	if err != nil {
		return n.emergencyRecovery(requestID, text, results, err)
	}

	artifacts := n.synthesize(requestID, tasks, results)
	n.transition(requestID, StateSynthesized, "")

	issues := n.validate(requestID, artifacts)
	n.transition(requestID, StateValidated, "")

	outcome := n.score(requestID, tasks, results, artifacts, issues)
	n.transition(requestID, StateScored, "")
	n.led.AppendJSON(ledger.EventOutcomeScored, types.RoleNexus, outcome)

	n.learn(tasks, results, outcome)
	n.afterOutcome(requestID, text, results, outcome)
	return outcome
}

// transition appends a lifecycle transition to the ledger.
func (n *Nexus) transition(requestID string, state RequestState, detail string) {
	payload := string(state) + " " + requestID
	if detail != "" {
		payload += ": " + detail
	}
	switch state {
	case StateReceived:
		n.led.Append(ledger.EventRequestReceived, types.RoleNexus, payload)
	case StateDecomposed:
		n.led.Append(ledger.EventRequestDecomposed, types.RoleNexus, payload)
	case StateExecuting:
		n.led.Append(ledger.EventTaskStarted, types.RoleNexus, payload)
	case StateSynthesized:
		n.led.Append(ledger.EventSynthesized, types.RoleNexus, payload)
	case StateValidated:
		n.led.Append(ledger.EventValidated, types.RoleNexus, payload)
	case StateScored:
		n.led.Append(ledger.EventOutcomeScored, types.RoleNexus, payload)
	case StateEmergencyRecovered:
		n.led.Append(ledger.EventEmergencyRecovery, types.RoleNexus, payload)
	}
	logging.Nexus("Request %s -> %s", requestID, state)
}

// learn runs one reward pass per participating agent.
func (n *Nexus) learn(tasks []*Task, results map[string]*types.TaskResult, outcome types.UserOutcome) {
	seen := make(map[types.AgentRole]bool)
	for _, t := range tasks {
		if seen[t.Role] {
			continue
		}
		seen[t.Role] = true
		tier := types.TierPrimary
		if r, ok := results[t.ID]; ok {
			tier = r.Tier
		}
		n.recordReward(t.Role, outcome, tier)
	}
}

// afterOutcome persists the outcome and schedules post-mortem plus
// constellation rewrite work for sub-threshold scores.
func (n *Nexus) afterOutcome(requestID, text string, results map[string]*types.TaskResult, outcome types.UserOutcome) {
	if n.db != nil {
		n.db.SaveOutcome(outcome)
	}

	n.mu.Lock()
	threshold := n.cfg.Outcome.PerfectionThreshold
	n.mu.Unlock()
	if outcome.Score >= threshold && !outcome.Catastrophic {
		return
	}

	// Pick the worst task result as the post-mortem subject.
	var worst *types.TaskResult
	for _, r := range results {
		if !r.Success {
			worst = r
			break
		}
		if worst == nil || r.Metrics.QualityScore < worst.Metrics.QualityScore {
			worst = r
		}
	}

	pm := n.coroner.Create(requestID, text, worst, &outcome)
	n.coroner.RewriteConstellation(pm)
	if n.db != nil {
		n.db.SavePostMortem(pm)
	}

	// Fold the evolved populations back into the implicated agents.
	n.mu.Lock()
	for _, role := range pm.ImplicatedRoles {
		if agent, ok := n.agents[role]; ok {
			agent.Ideology = n.evo.GeneratePatchedAgent(role)
			agent.Generation++
		}
	}
	n.mu.Unlock()
}

// ApplyConfig adopts the reloadable subset of a freshly loaded config: the
// outcome scoring policy and the learning rates. Structural settings such as
// the failover ladder and telemetry thresholds stay fixed for the process
// lifetime.
func (n *Nexus) ApplyConfig(cfg *config.Config) {
	n.mu.Lock()
	n.cfg.Outcome = cfg.Outcome
	n.cfg.Learning = cfg.Learning
	n.mu.Unlock()
	logging.Nexus("Adopted reloaded config (perfection_threshold=%v)", cfg.Outcome.PerfectionThreshold)
}

// AgentStatus returns an externally visible snapshot of every agent.
func (n *Nexus) AgentStatus() map[types.AgentRole]types.AgentStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[types.AgentRole]types.AgentStatus, len(n.agents))
	for role, a := range n.agents {
		tier, open := n.circuits.CircuitState(role)
		state := a.State
		if open {
			state = types.AgentQuarantined
		}
		out[role] = types.AgentStatus{
			Role:    role,
			State:   state,
			Tier:    tier,
			Fitness: a.Fitness,
		}
	}
	return out
}

// Ledger returns a read-only snapshot of the event chain.
func (n *Nexus) Ledger() []ledger.Entry {
	return n.led.Snapshot()
}

// PostMortems returns all post-mortems created so far.
func (n *Nexus) PostMortems() []postmortem.PostMortem {
	return n.coroner.PostMortems()
}

// ConstellationHealth is the mean fitness across all roles.
func (n *Nexus) ConstellationHealth() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.agents) == 0 {
		return 0
	}
	var sum float64
	for _, a := range n.agents {
		sum += a.Fitness
	}
	return sum / float64(len(n.agents))
}

func describeTasks(tasks []*Task) string {
	out := ""
	for i, t := range tasks {
		if i > 0 {
			out += ", "
		}
		out += string(t.Role)
		if t.Capability != "" {
			out += "/" + string(t.Capability)
		}
	}
	return out
}
