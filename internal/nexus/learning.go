package nexus

import (
	"aeon/internal/logging"
	"aeon/internal/types"
)

// stateKey is the discretized telemetry state used to key the action-value
// table. A composite struct key, not a serialized string: comparable, typed,
// and allocation-free on lookup.
type stateKey struct {
	LatencyBucket int        // 0: <500ms, 1: <2s, 2: <8s, 3: slower
	ErrorBucket   int        // 0: <5%, 1: <20%, 2: <50%, 3: worse
	HealthBucket  int        // 0: <25, 1: <50, 2: <75, 3: rest
	QueueBucket   int        // 0: empty, 1: <3, 2: <10, 3: deeper
	Tier          types.Tier // Tier ordinal completes the state
}

// discretize buckets the role's current telemetry into a state key.
func (n *Nexus) discretize(role types.AgentRole, tier types.Tier) stateKey {
	key := stateKey{Tier: tier}

	switch lat := n.collector.Latency(role); {
	case lat < 500:
		key.LatencyBucket = 0
	case lat < 2000:
		key.LatencyBucket = 1
	case lat < 8000:
		key.LatencyBucket = 2
	default:
		key.LatencyBucket = 3
	}

	switch er := n.collector.ErrorRate(role); {
	case er < 0.05:
		key.ErrorBucket = 0
	case er < 0.20:
		key.ErrorBucket = 1
	case er < 0.50:
		key.ErrorBucket = 2
	default:
		key.ErrorBucket = 3
	}

	switch h := n.collector.Health(role); {
	case h < 25:
		key.HealthBucket = 0
	case h < 50:
		key.HealthBucket = 1
	case h < 75:
		key.HealthBucket = 2
	default:
		key.HealthBucket = 3
	}

	switch q := n.collector.QueueDepth(role); {
	case q == 0:
		key.QueueBucket = 0
	case q < 3:
		key.QueueBucket = 1
	case q < 10:
		key.QueueBucket = 2
	default:
		key.QueueBucket = 3
	}
	return key
}

// computeReward maps an outcome onto a bounded reward in [-1,1]: the score
// centered at 50, minus penalties for stalls, warnings, exposed errors, and
// for finishing on a non-primary tier.
func computeReward(outcome types.UserOutcome, tier types.Tier) float64 {
	r := (outcome.Score - 50) / 50

	r -= 0.05 * float64(outcome.Stalls)
	r -= 0.03 * float64(outcome.Warnings)
	r -= 0.08 * float64(outcome.ExposedErrors)
	if tier > types.TierPrimary {
		r -= 0.1 * float64(tier)
	}

	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// recordReward runs one learning pass for a participating agent: blend the
// reward into its fitness (90% prior, 10% new) and apply a bootstrapped
// update to the action-value table. Exploration decays per pass with a
// floor; an exploratory pass triggers an extra evolution step to widen the
// search.
func (n *Nexus) recordReward(role types.AgentRole, outcome types.UserOutcome, tier types.Tier) {
	reward := computeReward(outcome, tier)
	newFitness := (reward + 1) / 2 * 100

	n.mu.Lock()
	agent, ok := n.agents[role]
	if !ok {
		n.mu.Unlock()
		return
	}
	blend := n.cfg.Learning.FitnessBlend
	agent.Fitness = blend*agent.Fitness + (1-blend)*newFitness

	key := n.discretize(role, tier)

	// Bootstrapped target: the best value reachable from this telemetry
	// state over any tier.
	var maxNext float64
	first := true
	for _, t := range types.AllTiers() {
		alt := key
		alt.Tier = t
		if q, ok := n.qtable[alt]; ok {
			if first || q > maxNext {
				maxNext = q
				first = false
			}
		}
	}

	lr := n.cfg.Learning.LearningRate
	gamma := n.cfg.Learning.DiscountFactor
	n.qtable[key] += lr * (reward + gamma*maxNext - n.qtable[key])

	n.exploration *= n.cfg.Learning.ExplorationDecay
	if n.exploration < n.cfg.Learning.ExplorationFloor {
		n.exploration = n.cfg.Learning.ExplorationFloor
	}
	explore := n.rng.Float64() < n.exploration
	fitness := agent.Fitness
	q := n.qtable[key]
	exploration := n.exploration
	n.mu.Unlock()

	logging.NexusDebug("%s reward=%.3f fitness=%.1f q[%+v]=%.3f exploration=%.3f",
		role, reward, fitness, key, q, exploration)

	if explore {
		// Exploratory pass: perturb the role's population beyond what the
		// outcome alone would justify.
		n.evo.Evolve(role, nil)
	}
}

// QValue returns the current action-value estimate for a state.
func (n *Nexus) QValue(key stateKey) float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.qtable[key]
}

// ExplorationRate returns the current decayed exploration rate.
func (n *Nexus) ExplorationRate() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exploration
}
