package evolution

import (
	"fmt"
	"sort"

	"aeon/internal/registry"
	"aeon/internal/types"
)

// GeneType names the five evolvable parameter kinds.
type GeneType string

const (
	GeneString     GeneType = "string"     // Prompt fragment (belief)
	GenePriority   GeneType = "priority"   // Bounded numeric weight
	GeneConstraint GeneType = "constraint" // Hard boolean rule
	GeneCapability GeneType = "capability" // Boolean capability flag
	GeneThreshold  GeneType = "threshold"  // Bounded scalar in [0,1]
)

// Gene is one named, typed, weighted parameter. Exactly one of the value
// fields is meaningful for a given type.
type Gene struct {
	Name    string   `json:"name"`
	Type    GeneType `json:"type"`
	String  string   `json:"string,omitempty"`
	Numeric float64  `json:"numeric,omitempty"`
	Bool    bool     `json:"bool,omitempty"`
	Min     float64  `json:"min"` // Numeric/threshold lower bound
	Max     float64  `json:"max"` // Numeric/threshold upper bound
	Weight  float64  `json:"weight"`
}

// Chromosome is one candidate behavioral configuration for a role.
type Chromosome struct {
	ID         string          `json:"id"`
	Role       types.AgentRole `json:"role"`
	Genes      []Gene          `json:"genes"`
	Fitness    float64         `json:"fitness"` // 0-1
	Generation int             `json:"generation"`
}

// Clone deep-copies the chromosome.
func (c Chromosome) Clone() Chromosome {
	out := c
	out.Genes = append([]Gene(nil), c.Genes...)
	return out
}

// promptLengthCap is the string-gene scoring cap: longer prompt fragments
// score higher up to this many characters, then flat.
const promptLengthCap = 80

// geneScore applies the type-specific scoring rule, normalized to [0,1].
func geneScore(g Gene) float64 {
	switch g.Type {
	case GeneString:
		score := float64(len(g.String)) / promptLengthCap
		if score > 1 {
			score = 1
		}
		return score
	case GenePriority:
		span := g.Max - g.Min
		if span <= 0 {
			return 0
		}
		return (g.Numeric - g.Min) / span
	case GeneConstraint, GeneCapability:
		if g.Bool {
			return 1
		}
		return 0
	case GeneThreshold:
		if g.Numeric >= 0 && g.Numeric <= 1 {
			return g.Numeric
		}
		return 0
	}
	return 0
}

// chromosomeFitness is the weighted average of the genes' scores.
func chromosomeFitness(c Chromosome) float64 {
	var sum, weights float64
	for _, g := range c.Genes {
		w := g.Weight
		if w <= 0 {
			w = 1
		}
		sum += w * geneScore(g)
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// genesFromIdeology derives one gene per belief, priority, and constraint,
// plus a capability flag per owned capability and one quality threshold.
// Map iteration order is randomized by the runtime, so named genes are
// emitted in sorted order to keep chromosomes comparable.
func genesFromIdeology(ideo types.Ideology, reg *registry.Registry) []Gene {
	var genes []Gene

	for i, belief := range ideo.Beliefs {
		genes = append(genes, Gene{
			Name:   fmt.Sprintf("belief_%d", i),
			Type:   GeneString,
			String: belief,
			Weight: 1.0,
		})
	}

	for _, name := range sortedKeys(ideo.Priorities) {
		genes = append(genes, Gene{
			Name:    "priority_" + name,
			Type:    GenePriority,
			Numeric: ideo.Priorities[name],
			Min:     0,
			Max:     1,
			Weight:  1.0,
		})
	}

	for _, name := range sortedKeys(ideo.Constraints) {
		genes = append(genes, Gene{
			Name:   "constraint_" + name,
			Type:   GeneConstraint,
			Bool:   ideo.Constraints[name],
			Weight: 1.0,
		})
	}

	if reg != nil {
		for _, cap := range ownedCapabilities(ideo.Role, reg) {
			genes = append(genes, Gene{
				Name:   "capability_" + string(cap),
				Type:   GeneCapability,
				Bool:   true,
				Weight: 0.5,
			})
		}
	}

	genes = append(genes, Gene{
		Name:    "quality_threshold",
		Type:    GeneThreshold,
		Numeric: 0.7,
		Min:     0,
		Max:     1,
		Weight:  0.5,
	})
	return genes
}

// ownedCapabilities lists the capabilities a role owns, sorted.
func ownedCapabilities(role types.AgentRole, reg *registry.Registry) []registry.Capability {
	var out []registry.Capability
	for _, cap := range []registry.Capability{
		registry.CapLayout, registry.CapStyling, registry.CapAnimation,
		registry.CapThreeD, registry.CapGPUOptimize, registry.CapContent,
		registry.CapResponsive, registry.CapAccessibility, registry.CapReducedMotion,
		registry.CapForms, registry.CapEcommerce,
	} {
		for _, owner := range reg.AgentsForCapability(cap) {
			if owner == role {
				out = append(out, cap)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ideologyFromGenes reconstructs a role ideology from a chromosome's genes.
// Empty categories fall back to the role's default ideology.
func ideologyFromGenes(role types.AgentRole, genes []Gene, fallback types.Ideology) types.Ideology {
	out := types.Ideology{
		Role:        role,
		Priorities:  make(map[string]float64),
		Constraints: make(map[string]bool),
	}
	for _, g := range genes {
		switch g.Type {
		case GeneString:
			if g.String != "" {
				out.Beliefs = append(out.Beliefs, g.String)
			}
		case GenePriority:
			out.Priorities[trimPrefix(g.Name, "priority_")] = g.Numeric
		case GeneConstraint:
			out.Constraints[trimPrefix(g.Name, "constraint_")] = g.Bool
		}
	}

	if len(out.Beliefs) == 0 {
		out.Beliefs = append([]string(nil), fallback.Beliefs...)
	}
	if len(out.Priorities) == 0 {
		for k, v := range fallback.Priorities {
			out.Priorities[k] = v
		}
	}
	if len(out.Constraints) == 0 {
		for k, v := range fallback.Constraints {
			out.Constraints[k] = v
		}
	}
	return out
}

func trimPrefix(s, prefix string) string {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
