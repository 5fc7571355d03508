package evolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeon/internal/config"
	"aeon/internal/registry"
	"aeon/internal/types"
)

func newTestEngine(mutate func(*config.EvolutionConfig)) *Engine {
	cfg := config.DefaultConfig().Evolution
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine(cfg, registry.New())
}

func TestSeedPopulations(t *testing.T) {
	e := newTestEngine(nil)
	for _, role := range types.AllRoles() {
		pop := e.Population(role)
		require.Len(t, pop.Chromosomes, 20, "role %s", role)
		assert.Equal(t, 0, pop.Generation)
		assert.NotEmpty(t, pop.Chromosomes[0].Genes)
		assert.Greater(t, pop.BestFitness, 0.0)
		// Ranked best-first.
		for i := 1; i < len(pop.Chromosomes); i++ {
			assert.GreaterOrEqual(t, pop.Chromosomes[i-1].Fitness, pop.Chromosomes[i].Fitness)
		}
	}
}

func TestEvolveAdvancesGeneration(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) { c.TargetFitness = 1.1 })
	e.Evolve(types.RoleStylist, &Feedback{Score: 60})

	pop := e.Population(types.RoleStylist)
	assert.Equal(t, 1, pop.Generation)
	assert.Len(t, pop.Chromosomes, 20)
	for _, c := range pop.Chromosomes {
		assert.Equal(t, len(pop.Chromosomes[0].Genes), len(c.Genes), "gene count must be uniform")
	}
}

func TestEvolveNoOpAtTargetFitness(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) { c.TargetFitness = 0.0 })
	before := e.Population(types.RoleAnimator)
	e.Evolve(types.RoleAnimator, nil)
	after := e.Population(types.RoleAnimator)
	assert.Equal(t, before.Generation, after.Generation)
}

func TestConvergenceOnRewardedGene(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) {
		c.TargetFitness = 1.1 // Never no-op
		c.MutationProbability = 0.5
	})

	// Fitness strictly rewards the quality_threshold gene's value.
	rewardThreshold := func(c Chromosome) float64 {
		for _, g := range c.Genes {
			if g.Name == "quality_threshold" {
				return g.Numeric
			}
		}
		return 0
	}

	var lastBest float64 = -1
	for gen := 0; gen < 50; gen++ {
		e.EvolveWithFitness(types.RoleCopywriter, rewardThreshold)
		pop := e.Population(types.RoleCopywriter)
		assert.GreaterOrEqual(t, pop.BestFitness+1e-9, lastBest,
			"best fitness regressed at generation %d", gen)
		lastBest = pop.BestFitness
	}

	pop := e.Population(types.RoleCopywriter)
	assert.Equal(t, 50, pop.Generation)
	assert.Greater(t, pop.BestFitness, 0.85, "top chromosome should approach the rewarded value")

	var threshold float64
	for _, g := range pop.Chromosomes[0].Genes {
		if g.Name == "quality_threshold" {
			threshold = g.Numeric
		}
	}
	assert.Greater(t, threshold, 0.85)
}

func TestMutationsAreRecorded(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) {
		c.TargetFitness = 1.1
		c.MutationProbability = 1.0 // Mutate every gene
	})
	e.Evolve(types.RoleShaderSmith, nil)

	recs := e.Mutations()
	require.NotEmpty(t, recs)
	for _, r := range recs {
		assert.NotEmpty(t, r.Gene)
		assert.NotEmpty(t, r.Operation)
		assert.NotEmpty(t, r.ChromosomeID)
	}
}

func TestNumericMutationStaysBounded(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) {
		c.TargetFitness = 1.1
		c.MutationProbability = 1.0
	})
	for i := 0; i < 20; i++ {
		e.Evolve(types.RoleA11y, nil)
	}
	pop := e.Population(types.RoleA11y)
	for _, c := range pop.Chromosomes {
		for _, g := range c.Genes {
			if g.Type == GenePriority || g.Type == GeneThreshold {
				assert.GreaterOrEqual(t, g.Numeric, g.Min, "gene %s below bound", g.Name)
				assert.LessOrEqual(t, g.Numeric, g.Max, "gene %s above bound", g.Name)
			}
		}
	}
}

func TestGeneratePatchedAgent(t *testing.T) {
	e := newTestEngine(nil)
	ideo := e.GeneratePatchedAgent(types.RoleStylist)
	assert.Equal(t, types.RoleStylist, ideo.Role)
	assert.NotEmpty(t, ideo.Beliefs)
	assert.NotEmpty(t, ideo.Priorities)
	assert.NotEmpty(t, ideo.Constraints)
}

func TestResetReturnsToGenerationZero(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) { c.TargetFitness = 1.1 })
	e.Evolve(types.RoleValidator, nil)
	e.Evolve(types.RoleValidator, nil)
	require.Equal(t, 2, e.Population(types.RoleValidator).Generation)

	e.Reset(types.RoleValidator)
	assert.Equal(t, 0, e.Population(types.RoleValidator).Generation)
}

func TestCatastrophicFeedbackDepressesFitness(t *testing.T) {
	e := newTestEngine(func(c *config.EvolutionConfig) { c.TargetFitness = 1.1 })

	e.Evolve(types.RoleIntegrator, &Feedback{Score: 100})
	good := e.Population(types.RoleIntegrator).BestFitness

	e2 := newTestEngine(func(c *config.EvolutionConfig) { c.TargetFitness = 1.1 })
	e2.Evolve(types.RoleIntegrator, &Feedback{Score: 0, Catastrophic: true})
	bad := e2.Population(types.RoleIntegrator).BestFitness

	assert.Greater(t, good, bad)
}
