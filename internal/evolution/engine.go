// Package evolution is the genetic adaptation loop of the constellation.
// Each role carries a population of chromosomes derived from its ideology;
// after every scored request the engine selects, crosses, and mutates the
// population, and the best chromosome can be folded back into a patched
// agent ideology.
package evolution

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aeon/internal/config"
	"aeon/internal/logging"
	"aeon/internal/registry"
	"aeon/internal/types"
)

// Feedback is the per-request signal folded into fitness.
type Feedback struct {
	Score        float64 // Outcome score, 0-100
	Catastrophic bool
}

// FitnessFunc scores one chromosome in [0,1]. The default applies the
// per-gene-type rules; callers may substitute their own for directed search.
type FitnessFunc func(Chromosome) float64

// MutationRecord captures one gene mutation with before/after values.
type MutationRecord struct {
	Timestamp    time.Time       `json:"timestamp"`
	Role         types.AgentRole `json:"role"`
	ChromosomeID string          `json:"chromosome_id"`
	Gene         string          `json:"gene"`
	Operation    string          `json:"operation"`
	Before       string          `json:"before"`
	After        string          `json:"after"`
}

// Population is one role's ranked chromosome set plus aggregate stats.
type Population struct {
	Role        types.AgentRole `json:"role"`
	Chromosomes []Chromosome    `json:"chromosomes"` // Ranked, best first
	Generation  int             `json:"generation"`
	BestFitness float64         `json:"best_fitness"`
	MeanFitness float64         `json:"mean_fitness"`
	Diversity   float64         `json:"diversity"`
}

// Engine owns every role's population. All mutation happens under its lock.
type Engine struct {
	mu          sync.Mutex
	cfg         config.EvolutionConfig
	reg         *registry.Registry
	rng         *rand.Rand
	populations map[types.AgentRole]*Population
	mutations   []MutationRecord
}

// mutationHistoryLimit bounds the recorded mutation log.
const mutationHistoryLimit = 2000

// emphasisWords are inserted by the string-gene emphasis mutation.
var emphasisWords = []string{"always", "strictly", "carefully", "precisely", "deliberately"}

// synonyms drive the string-gene substitution mutation.
var synonyms = map[string]string{
	"every":    "each",
	"never":    "not once",
	"output":   "result",
	"design":   "compose",
	"build":    "construct",
	"beats":    "outranks",
	"is":       "remains",
	"should":   "must",
	"better":   "more",
	"sacred":   "inviolable",
	"element":  "component",
	"first":    "foremost",
	"complete": "finished",
}

// NewEngine seeds one population per role from the registry ideologies.
// Chromosome zero is the unmodified ideology; the rest are mutated variants.
func NewEngine(cfg config.EvolutionConfig, reg *registry.Registry) *Engine {
	e := &Engine{
		cfg:         cfg,
		reg:         reg,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		populations: make(map[types.AgentRole]*Population, 10),
	}
	for _, role := range types.AllRoles() {
		e.populations[role] = e.seedPopulation(role)
	}
	return e
}

func (e *Engine) seedPopulation(role types.AgentRole) *Population {
	base := genesFromIdeology(e.reg.IdeologyFor(role), e.reg)
	pop := &Population{Role: role}
	for i := 0; i < e.cfg.PopulationSize; i++ {
		c := Chromosome{
			ID:    uuid.New().String(),
			Role:  role,
			Genes: append([]Gene(nil), base...),
		}
		if i > 0 {
			// Variants start perturbed so generation zero has diversity.
			for gi := range c.Genes {
				if e.rng.Float64() < e.cfg.MutationProbability {
					e.mutateGene(&c, gi)
				}
			}
		}
		c.Fitness = chromosomeFitness(c)
		pop.Chromosomes = append(pop.Chromosomes, c)
	}
	e.rankAndSummarize(pop)
	return pop
}

// Population returns a copy of the role's population.
func (e *Engine) Population(role types.AgentRole) Population {
	e.mu.Lock()
	defer e.mu.Unlock()
	pop, ok := e.populations[role]
	if !ok {
		return Population{Role: role}
	}
	out := *pop
	out.Chromosomes = make([]Chromosome, len(pop.Chromosomes))
	for i, c := range pop.Chromosomes {
		out.Chromosomes[i] = c.Clone()
	}
	return out
}

// Mutations returns a copy of the recorded mutation log.
func (e *Engine) Mutations() []MutationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]MutationRecord(nil), e.mutations...)
}

// Evolve advances one generation using the default fitness rules blended
// with user feedback. A population whose best chromosome already meets the
// target fitness is left alone.
func (e *Engine) Evolve(role types.AgentRole, feedback *Feedback) {
	fitness := func(c Chromosome) float64 {
		f := chromosomeFitness(c)
		if feedback != nil {
			blend := 0.9*f + 0.1*(feedback.Score/100)
			if feedback.Catastrophic {
				blend *= 0.8
			}
			return blend
		}
		return f
	}
	e.EvolveWithFitness(role, fitness)
}

// EvolveWithFitness advances one generation under an explicit fitness
// function.
func (e *Engine) EvolveWithFitness(role types.AgentRole, fitness FitnessFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pop, ok := e.populations[role]
	if !ok {
		return
	}

	for i := range pop.Chromosomes {
		pop.Chromosomes[i].Fitness = fitness(pop.Chromosomes[i])
	}
	e.rankAndSummarize(pop)

	if pop.BestFitness >= e.cfg.TargetFitness {
		logging.EvolutionDebug("%s generation %d already at target fitness %.3f, skipping", role, pop.Generation, pop.BestFitness)
		return
	}

	next := make([]Chromosome, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.EliteCount && i < len(pop.Chromosomes); i++ {
		elite := pop.Chromosomes[i].Clone()
		elite.Generation = pop.Generation + 1
		next = append(next, elite)
	}

	for len(next) < e.cfg.PopulationSize {
		p1 := e.tournament(pop)
		p2 := e.tournament(pop)

		var child Chromosome
		if e.rng.Float64() < e.cfg.CrossoverProbability {
			child = e.crossover(p1, p2)
		} else {
			child = p1.Clone()
			child.ID = uuid.New().String()
		}
		child.Generation = pop.Generation + 1

		for gi := range child.Genes {
			if e.rng.Float64() < e.cfg.MutationProbability {
				e.mutateGene(&child, gi)
			}
		}
		child.Fitness = fitness(child)
		next = append(next, child)
	}

	pop.Chromosomes = next
	pop.Generation++
	e.rankAndSummarize(pop)
	logging.Evolution("%s generation %d: best=%.3f mean=%.3f diversity=%.3f",
		role, pop.Generation, pop.BestFitness, pop.MeanFitness, pop.Diversity)
}

// tournament picks the diversity-weighted best of a fixed-size random
// sample. Caller holds the lock.
func (e *Engine) tournament(pop *Population) Chromosome {
	size := e.cfg.TournamentSize
	if size < 1 {
		size = 1
	}
	best := -1
	bestScore := -1.0
	for i := 0; i < size; i++ {
		idx := e.rng.Intn(len(pop.Chromosomes))
		c := pop.Chromosomes[idx]
		score := c.Fitness + 0.1*e.diversityOf(c, pop)
		if score > bestScore {
			bestScore = score
			best = idx
		}
	}
	return pop.Chromosomes[best]
}

// crossover builds a child by a per-gene coin flip between two parents.
func (e *Engine) crossover(p1, p2 Chromosome) Chromosome {
	child := Chromosome{
		ID:    uuid.New().String(),
		Role:  p1.Role,
		Genes: make([]Gene, len(p1.Genes)),
	}
	for i := range p1.Genes {
		if i < len(p2.Genes) && e.rng.Float64() < 0.5 {
			child.Genes[i] = p2.Genes[i]
		} else {
			child.Genes[i] = p1.Genes[i]
		}
	}
	return child
}

// mutateGene applies the type-specific mutation to one gene and records it.
// Caller holds the lock.
func (e *Engine) mutateGene(c *Chromosome, gi int) {
	g := &c.Genes[gi]
	rec := MutationRecord{
		Timestamp:    time.Now(),
		Role:         c.Role,
		ChromosomeID: c.ID,
		Gene:         g.Name,
	}

	switch g.Type {
	case GeneString:
		rec.Before = g.String
		g.String, rec.Operation = e.mutateString(g.String)
		rec.After = g.String
	case GenePriority, GeneThreshold:
		rec.Before = formatFloat(g.Numeric)
		g.Numeric = clampFloat(g.Numeric+e.boxMuller()*0.1, g.Min, g.Max)
		rec.After = formatFloat(g.Numeric)
		rec.Operation = "gaussian_perturb"
	case GeneConstraint, GeneCapability:
		rec.Before = formatBool(g.Bool)
		g.Bool = !g.Bool
		rec.After = formatBool(g.Bool)
		rec.Operation = "flip"
	}

	e.mutations = append(e.mutations, rec)
	if len(e.mutations) > mutationHistoryLimit {
		e.mutations = e.mutations[len(e.mutations)-mutationHistoryLimit:]
	}
}

// mutateString applies one of the four string mutations.
func (e *Engine) mutateString(s string) (string, string) {
	words := strings.Fields(s)
	switch e.rng.Intn(4) {
	case 0: // Insert an emphasis word
		w := emphasisWords[e.rng.Intn(len(emphasisWords))]
		pos := 0
		if len(words) > 0 {
			pos = e.rng.Intn(len(words) + 1)
		}
		words = append(words[:pos], append([]string{w}, words[pos:]...)...)
		return strings.Join(words, " "), "insert_emphasis"
	case 1: // Delete a word
		if len(words) > 1 {
			pos := e.rng.Intn(len(words))
			words = append(words[:pos], words[pos+1:]...)
		}
		return strings.Join(words, " "), "delete_word"
	case 2: // Synonym substitution
		for i, w := range words {
			if syn, ok := synonyms[strings.ToLower(w)]; ok {
				words[i] = syn
				return strings.Join(words, " "), "synonym"
			}
		}
		return strings.Join(words, " "), "synonym_noop"
	default: // Swap two adjacent words
		if len(words) > 1 {
			pos := e.rng.Intn(len(words) - 1)
			words[pos], words[pos+1] = words[pos+1], words[pos]
		}
		return strings.Join(words, " "), "swap_adjacent"
	}
}

// boxMuller draws one standard normal sample.
func (e *Engine) boxMuller() float64 {
	u1 := e.rng.Float64()
	for u1 == 0 {
		u1 = e.rng.Float64()
	}
	u2 := e.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// diversityOf measures how far a chromosome sits from the population on its
// numeric and boolean genes, normalized to [0,1]. Caller holds the lock.
func (e *Engine) diversityOf(c Chromosome, pop *Population) float64 {
	if len(pop.Chromosomes) < 2 || len(c.Genes) == 0 {
		return 0
	}
	var total float64
	for gi, g := range c.Genes {
		var dist float64
		for _, other := range pop.Chromosomes {
			if gi >= len(other.Genes) {
				continue
			}
			og := other.Genes[gi]
			switch g.Type {
			case GenePriority, GeneThreshold:
				span := g.Max - g.Min
				if span > 0 {
					dist += math.Abs(g.Numeric-og.Numeric) / span
				}
			case GeneConstraint, GeneCapability:
				if g.Bool != og.Bool {
					dist++
				}
			case GeneString:
				if g.String != og.String {
					dist++
				}
			}
		}
		total += dist / float64(len(pop.Chromosomes))
	}
	return total / float64(len(c.Genes))
}

// rankAndSummarize sorts best-first and refreshes the aggregate stats.
// Caller holds the lock.
func (e *Engine) rankAndSummarize(pop *Population) {
	chs := pop.Chromosomes
	for i := 1; i < len(chs); i++ {
		for j := i; j > 0 && chs[j].Fitness > chs[j-1].Fitness; j-- {
			chs[j], chs[j-1] = chs[j-1], chs[j]
		}
	}

	var sum, diversity float64
	for _, c := range chs {
		sum += c.Fitness
		diversity += e.diversityOf(c, pop)
	}
	if len(chs) > 0 {
		pop.BestFitness = chs[0].Fitness
		pop.MeanFitness = sum / float64(len(chs))
		pop.Diversity = diversity / float64(len(chs))
	}
}

// GeneratePatchedAgent folds the best chromosome back into an ideology.
// Gene categories the chromosome lacks fall back to the role default.
func (e *Engine) GeneratePatchedAgent(role types.AgentRole) types.Ideology {
	e.mu.Lock()
	defer e.mu.Unlock()

	fallback := e.reg.IdeologyFor(role)
	pop, ok := e.populations[role]
	if !ok || len(pop.Chromosomes) == 0 {
		return fallback
	}
	return ideologyFromGenes(role, pop.Chromosomes[0].Genes, fallback)
}

// Reset reseeds a role's population from its default ideology at
// generation zero. Used by constellation rewrites.
func (e *Engine) Reset(role types.AgentRole) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.populations[role] = e.seedPopulation(role)
	logging.Evolution("%s population reset to generation 0", role)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
