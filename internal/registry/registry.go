// Package registry is the capability registry of the constellation: a static
// mapping from domain keywords to capability IDs to the agent roles that own
// each capability, plus per-role ideologies and the degraded prompt templates
// used to build the FALLBACK_A/B/C algorithm variants.
//
// The registry is pure lookup. Capability detection is deliberately simple
// substring matching; it is not natural-language understanding and does not
// try to be.
package registry

import (
	"sort"
	"strings"

	"aeon/internal/logging"
	"aeon/internal/types"
)

// Capability identifies one detectable domain capability.
type Capability string

const (
	CapLayout        Capability = "layout"
	CapStyling       Capability = "styling"
	CapAnimation     Capability = "animation"
	CapThreeD        Capability = "three_d"
	CapGPUOptimize   Capability = "gpu_optimization"
	CapContent       Capability = "content"
	CapResponsive    Capability = "responsive"
	CapAccessibility Capability = "accessibility"
	CapReducedMotion Capability = "reduced_motion"
	CapForms         Capability = "forms"
	CapEcommerce     Capability = "ecommerce"
)

// FallbackLevel names one of the three degraded prompt templates per role.
type FallbackLevel string

const (
	FallbackReduced   FallbackLevel = "reduced"
	FallbackMinimal   FallbackLevel = "minimal"
	FallbackEmergency FallbackLevel = "emergency"
)

// FallbackTemplate is one degraded algorithm variant: a smaller capability
// subset and a simpler prompt. Built into agents at construction time as
// FALLBACK_A (reduced), FALLBACK_B (minimal), and FALLBACK_C (emergency).
type FallbackTemplate struct {
	Level        FallbackLevel     `json:"level"`
	Capabilities []Capability      `json:"capabilities"`
	Prompt       string            `json:"prompt"`
	Role         types.AgentRole   `json:"role"`
}

// capabilityDef binds a capability to its trigger keywords and owners.
// Owners are ordered: the first role is the primary owner.
type capabilityDef struct {
	id       Capability
	keywords []string
	owners   []types.AgentRole
}

// implication is a rule "detecting From also implies To".
type implication struct {
	from Capability
	to   Capability
}

// Registry holds the static capability tables. No mutable state.
type Registry struct {
	caps         []capabilityDef
	implications []implication
	ideologies   map[types.AgentRole]types.Ideology
	basePrompts  map[types.AgentRole]string
	fallbacks    map[types.AgentRole][3]FallbackTemplate
}

// New constructs the registry with the built-in tables.
func New() *Registry {
	return &Registry{
		caps:         capabilityTable(),
		implications: implicationTable(),
		ideologies:   ideologyTable(),
		basePrompts:  basePromptTable(),
		fallbacks:    fallbackTable(),
	}
}

// DetectCapabilities scans the request text for capability keywords and
// applies the implication rules. The result is sorted and deduplicated.
func (r *Registry) DetectCapabilities(text string) []Capability {
	lower := strings.ToLower(text)
	found := make(map[Capability]bool)

	for _, def := range r.caps {
		for _, kw := range def.keywords {
			if strings.Contains(lower, kw) {
				found[def.id] = true
				break
			}
		}
	}

	// Implication rules, applied to fixpoint (the table is tiny and acyclic,
	// one pass per rule chain suffices).
	changed := true
	for changed {
		changed = false
		for _, imp := range r.implications {
			if found[imp.from] && !found[imp.to] {
				found[imp.to] = true
				changed = true
			}
		}
	}

	out := make([]Capability, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	logging.RegistryDebug("Detected %d capabilities from %d chars of request", len(out), len(text))
	return out
}

// AgentsForCapability returns the ordered owner list for a capability.
// The first entry is the primary owner. Unknown capabilities return nil.
func (r *Registry) AgentsForCapability(id Capability) []types.AgentRole {
	for _, def := range r.caps {
		if def.id == id {
			return append([]types.AgentRole(nil), def.owners...)
		}
	}
	return nil
}

// PrimaryOwner returns the primary owning role for a capability.
func (r *Registry) PrimaryOwner(id Capability) (types.AgentRole, bool) {
	owners := r.AgentsForCapability(id)
	if len(owners) == 0 {
		return "", false
	}
	return owners[0], true
}

// IdeologyFor returns the default ideology for a role.
func (r *Registry) IdeologyFor(role types.AgentRole) types.Ideology {
	if ideo, ok := r.ideologies[role]; ok {
		return ideo.Clone()
	}
	return types.Ideology{Role: role, Priorities: map[string]float64{}, Constraints: map[string]bool{}}
}

// BasePrompt returns the full-capability prompt for a role, used for the
// PRIMARY and STANDBY algorithm variants.
func (r *Registry) BasePrompt(role types.AgentRole) string {
	return r.basePrompts[role]
}

// FallbackTemplates returns the three progressively simpler templates for a
// role, ordered reduced, minimal, emergency.
func (r *Registry) FallbackTemplates(role types.AgentRole) [3]FallbackTemplate {
	return r.fallbacks[role]
}
