// Package failover is the per-role circuit breaker of the constellation.
// Every risky operation runs through ExecuteWithFailover, which walks the
// five-tier ladder (PRIMARY through FALLBACK_C) with tier-specific timeouts,
// records every transition, and opens the circuit once the ladder is
// exhausted.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/config"
	"aeon/internal/generation"
	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/telemetry"
	"aeon/internal/types"
)

// Terminal conditions surfaced to the controller.
var (
	ErrCircuitOpen       = errors.New("circuit open")
	ErrAllTiersExhausted = errors.New("all tiers exhausted")
)

// Operation is one attempt of the protected work at a given tier. The
// context carries the tier-specific timeout.
type Operation func(ctx context.Context, tier types.Tier) (*types.TaskResult, error)

// Transition records one tier movement, successful or failed, with
// microsecond-precision latency.
type Transition struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Role          types.AgentRole   `json:"role"`
	From          types.Tier        `json:"from"`
	To            types.Tier        `json:"to"`
	Success       bool              `json:"success"`
	FailureKind   types.FailureKind `json:"failure_kind,omitempty"`
	LatencyMicros int64             `json:"latency_micros"`
	Reason        string            `json:"reason,omitempty"`
}

// circuit is the per-role breaker state. Owned by the Manager, guarded by
// its mutex.
type circuit struct {
	tier                types.Tier
	consecutiveFailures int
	open                bool
	cooldownUntil       time.Time
}

// Manager owns one circuit per role plus the checkpoint lists.
type Manager struct {
	mu          sync.Mutex
	cfg         config.FailoverConfig
	collector   *telemetry.Collector
	ledger      *ledger.Ledger
	circuits    map[types.AgentRole]*circuit
	checkpoints map[types.AgentRole][]Checkpoint
	transitions []Transition
	cooldown    time.Duration
}

// transitionHistoryLimit bounds the in-memory transition log; the ledger
// keeps the full record.
const transitionHistoryLimit = 1000

// NewManager builds circuits for the full roster, all closed at PRIMARY.
func NewManager(cfg config.FailoverConfig, collector *telemetry.Collector, led *ledger.Ledger) *Manager {
	m := &Manager{
		cfg:         cfg,
		collector:   collector,
		ledger:      led,
		circuits:    make(map[types.AgentRole]*circuit, 10),
		checkpoints: make(map[types.AgentRole][]Checkpoint, 10),
		cooldown:    config.ParseDuration(cfg.Cooldown, 30*time.Second),
	}
	for _, role := range types.AllRoles() {
		m.circuits[role] = &circuit{tier: types.TierPrimary}
	}
	return m
}

// maxSameTierAttempts bounds retries on one tier before escalation is forced
// even when the telemetry criteria have not tripped. Without the bound a
// healthy-looking agent with a broken tier would retry forever.
const maxSameTierAttempts = 2

// ExecuteWithFailover runs op through the role's circuit, escalating tiers
// on failure. On success from a tier other than the starting one, a
// transition is recorded and state is rehydrated from the latest checkpoint.
func (m *Manager) ExecuteWithFailover(ctx context.Context, role types.AgentRole, op Operation) (*types.TaskResult, error) {
	m.mu.Lock()
	c, ok := m.circuits[role]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("no circuit for role %s", role)
	}

	now := time.Now()
	if c.open {
		if now.Before(c.cooldownUntil) {
			m.mu.Unlock()
			logging.Failover("%s rejected: circuit open for %s more", role, time.Until(c.cooldownUntil).Round(time.Millisecond))
			return nil, fmt.Errorf("%w: %s cooling until %s", ErrCircuitOpen, role, c.cooldownUntil.Format(time.RFC3339))
		}
		// Half-open: one probe back at PRIMARY.
		c.open = false
		c.tier = types.TierPrimary
		c.consecutiveFailures = 0
		m.ledger.Append(ledger.EventCircuitClosed, role, "half-open probe at PRIMARY after cooldown")
		logging.Failover("%s circuit half-open, probing PRIMARY", role)
	}
	startTier := c.tier
	m.mu.Unlock()

	tier := startTier
	attemptsAtTier := 0
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.TierTimeout(int(tier)))
		t0 := time.Now()
		result, err := op(attemptCtx, tier)
		latency := time.Since(t0)
		cancel()

		if err == nil && result != nil {
			m.onSuccess(role, startTier, tier, latency, result)
			return result, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: operation returned no result", generation.ErrInvalidOutput)
		}

		kind := Classify(err)
		m.recordTransition(role, tier, tier, false, kind, latency, err.Error())
		m.collector.RecordOperation(role, false, float64(latency.Milliseconds()), 0)

		m.mu.Lock()
		c.consecutiveFailures++
		failures := c.consecutiveFailures
		m.mu.Unlock()

		logging.Failover("%s failed at %s (%s, consecutive=%d): %v", role, tier, kind, failures, err)

		// A streak at the configured maximum forfeits same-tier retries and
		// drives straight down the ladder. The circuit itself only opens at
		// exhaustion; mid-ladder failures never surface to the caller.
		attemptsAtTier++
		if attemptsAtTier < maxSameTierAttempts &&
			failures < m.cfg.MaxConsecutiveFailures &&
			!m.shouldEscalate(role, kind, latency) {
			continue
		}

		next, more := tier.Next()
		if !more {
			m.openCircuit(role, c, fmt.Sprintf("FALLBACK_C exhausted after %d consecutive failures", failures))
			return nil, fmt.Errorf("%w: %s failed through FALLBACK_C: %v", ErrAllTiersExhausted, role, err)
		}
		m.recordTransition(role, tier, next, false, kind, latency, "escalating")
		tier = next
		attemptsAtTier = 0

		m.mu.Lock()
		c.tier = tier
		m.mu.Unlock()
		m.collector.SetTier(role, tier)
	}
}

// onSuccess handles bookkeeping for a successful attempt. A clean success at
// the starting tier breaks the failure streak; a recovery on a degraded tier
// only softens it.
func (m *Manager) onSuccess(role types.AgentRole, startTier, tier types.Tier, latency time.Duration, result *types.TaskResult) {
	result.Tier = tier
	result.Metrics.LatencyMs = float64(latency.Milliseconds())

	m.mu.Lock()
	if c := m.circuits[role]; c != nil {
		if tier == startTier {
			c.consecutiveFailures = 0
		} else if c.consecutiveFailures > 0 {
			c.consecutiveFailures--
		}
	}
	m.mu.Unlock()

	if tier != startTier {
		m.recordTransition(role, startTier, tier, true, "", latency, "recovered on degraded tier")
		// Rehydrate so the agent resumes from its last known-good state. The
		// restored blob rides back on the result for the caller to fold in.
		if blob, ok := m.RestoreState(role); ok {
			result.RestoredContext = blob.TaskContext
			if result.Output == "" {
				result.Output = blob.PartialOutput
			}
		} else {
			logging.FailoverDebug("No checkpoint to restore for %s after tier transition", role)
		}
	}

	m.collector.RecordOperation(role, true, float64(latency.Milliseconds()), result.Metrics.QualityScore)
	m.collector.SetTier(role, tier)
}

// shouldEscalate checks the telemetry-derived failover criteria: health below
// the floor, latency or error rate over threshold, or a statistical deviation
// beyond sigma-multiplier from the rolling mean. Hard failure kinds escalate
// immediately regardless.
func (m *Manager) shouldEscalate(role types.AgentRole, kind types.FailureKind, latency time.Duration) bool {
	switch kind {
	case types.FailMemoryExceeded, types.FailInfiniteLoop, types.FailInvalidOutput:
		return true
	}

	if m.collector.Health(role) < m.cfg.HealthFloor {
		return true
	}
	latencyMs := float64(latency.Milliseconds())
	if dyn := m.collector.DynamicThreshold(role, telemetry.MetricLatency, m.cfg.SigmaMultiplier); latencyMs > dyn {
		return true
	}
	if errDyn := m.collector.DynamicThreshold(role, telemetry.MetricErrorRate, m.cfg.SigmaMultiplier); m.collector.ErrorRate(role) > errDyn {
		return true
	}
	return false
}

// openCircuit opens the role's circuit for the configured cooldown.
func (m *Manager) openCircuit(role types.AgentRole, c *circuit, reason string) {
	m.mu.Lock()
	c.open = true
	c.cooldownUntil = time.Now().Add(m.cooldown)
	until := c.cooldownUntil
	m.mu.Unlock()

	m.ledger.AppendJSON(ledger.EventCircuitOpened, role, map[string]string{
		"reason":         reason,
		"cooldown_until": until.Format(time.RFC3339),
	})
	logging.Failover("%s circuit OPEN (%s), cooldown until %s", role, reason, until.Format(time.RFC3339))
}

// recordTransition appends to the bounded in-memory log and the ledger.
func (m *Manager) recordTransition(role types.AgentRole, from, to types.Tier, success bool, kind types.FailureKind, latency time.Duration, reason string) {
	tr := Transition{
		ID:            uuid.New().String(),
		Timestamp:     time.Now(),
		Role:          role,
		From:          from,
		To:            to,
		Success:       success,
		FailureKind:   kind,
		LatencyMicros: latency.Microseconds(),
		Reason:        reason,
	}

	m.mu.Lock()
	m.transitions = append(m.transitions, tr)
	if len(m.transitions) > transitionHistoryLimit {
		m.transitions = m.transitions[len(m.transitions)-transitionHistoryLimit:]
	}
	m.mu.Unlock()

	m.ledger.AppendJSON(ledger.EventTierTransition, role, tr)
}

// Transitions returns a copy of the recent transition log.
func (m *Manager) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.transitions...)
}

// CircuitState reports the role's current tier and whether its circuit is
// open.
func (m *Manager) CircuitState(role types.AgentRole) (tier types.Tier, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.circuits[role]; ok {
		return c.tier, c.open
	}
	return types.TierPrimary, false
}

// Classify buckets an error into exactly one failure kind. Sentinel
// conditions from the generation layer are checked first; anything else
// falls to message heuristics.
func Classify(err error) types.FailureKind {
	if err == nil {
		return types.FailGeneration
	}
	switch {
	case errors.Is(err, generation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.FailTimeout
	case errors.Is(err, generation.ErrRateLimited):
		return types.FailRateLimit
	case errors.Is(err, generation.ErrInvalidOutput):
		return types.FailInvalidOutput
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return types.FailTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return types.FailRateLimit
	case strings.Contains(msg, "memory") || strings.Contains(msg, "oom"):
		return types.FailMemoryExceeded
	case strings.Contains(msg, "infinite loop") || strings.Contains(msg, "recursion") || strings.Contains(msg, "loop detected"):
		return types.FailInfiniteLoop
	case strings.Contains(msg, "dependency") || strings.Contains(msg, "missing module"):
		return types.FailDependencyMissing
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed") || strings.Contains(msg, "parse"):
		return types.FailInvalidOutput
	default:
		return types.FailGeneration
	}
}
