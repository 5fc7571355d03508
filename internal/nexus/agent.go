package nexus

import (
	"aeon/internal/registry"
	"aeon/internal/types"
)

// Agent is one member of the constellation: a fixed role plus its mutable
// lifecycle state, tier, behavioral profile, and the five prompt variants
// (one per tier) built from the registry at construction time.
//
// Agents are created once at system start and never destroyed; a full
// rewrite resets them to generation-zero defaults.
type Agent struct {
	Role       types.AgentRole
	State      types.AgentState
	Tier       types.Tier
	Ideology   types.Ideology
	Variants   map[types.Tier]string // Prompt per tier
	Generation int
	Fitness    float64 // 0-100, initialized to 50
	Checkpoint string  // Last checkpoint ID, empty if none
}

// buildRoster constructs the full ten-agent constellation. PRIMARY and
// STANDBY share the base prompt; the fallback tiers use the registry's
// degraded templates.
func buildRoster(reg *registry.Registry) map[types.AgentRole]*Agent {
	roster := make(map[types.AgentRole]*Agent, 10)
	for _, role := range types.AllRoles() {
		base := reg.BasePrompt(role)
		fallbacks := reg.FallbackTemplates(role)
		roster[role] = &Agent{
			Role:     role,
			State:    types.AgentIdle,
			Tier:     types.TierPrimary,
			Ideology: reg.IdeologyFor(role),
			Variants: map[types.Tier]string{
				types.TierPrimary:   base,
				types.TierStandby:   base,
				types.TierFallbackA: fallbacks[0].Prompt,
				types.TierFallbackB: fallbacks[1].Prompt,
				types.TierFallbackC: fallbacks[2].Prompt,
			},
			Fitness: 50,
		}
	}
	return roster
}

// variantFor returns the agent's prompt for a tier, falling back to the
// base prompt for unknown tiers.
func (a *Agent) variantFor(tier types.Tier) string {
	if v, ok := a.Variants[tier]; ok {
		return v
	}
	return a.Variants[types.TierPrimary]
}
