// Package generation defines the text-generation collaborator consumed by
// the orchestration core. The core never inspects how generation happens;
// latency and the failure condition are the only signals it reads.
package generation

import (
	"context"
	"errors"
	"fmt"

	"aeon/internal/config"
	"aeon/internal/types"
)

// Sentinel failure conditions. The failover circuit classifies attempt
// errors against these before falling back to message heuristics.
var (
	ErrTimeout       = errors.New("generation timed out")
	ErrRateLimited   = errors.New("generation rate limited")
	ErrInvalidOutput = errors.New("generation returned invalid output")
	ErrGeneration    = errors.New("generation failed")
)

// Generator produces role-specific text for one tier. Implementations must
// honor ctx cancellation and return one of the sentinel conditions (wrapped
// is fine) on failure.
type Generator interface {
	Generate(ctx context.Context, role types.AgentRole, prompt string, tier types.Tier) (string, error)
}

// tierSettings returns per-tier generation parameters. Degraded tiers trade
// richness for determinism: smaller outputs, lower temperature.
func tierSettings(tier types.Tier) (temperature float32, maxTokens int32) {
	switch tier {
	case types.TierPrimary:
		return 0.7, 8192
	case types.TierStandby:
		return 0.5, 8192
	case types.TierFallbackA:
		return 0.3, 4096
	case types.TierFallbackB:
		return 0.2, 2048
	default:
		return 0.0, 1024
	}
}

// New builds a Generator from configuration. Provider "mock" is reserved for
// tests and is not constructable here.
func New(cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiGenerator(cfg)
	case "http":
		return NewHTTPGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
