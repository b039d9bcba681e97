package optimizer

import (
	"fmt"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// Optimizer types understood by New
const (
	TypeRandom      = "random"
	TypeGrid        = "grid"
	TypeLocalSearch = "local_search"
)

// New creates an optimizer of the configured type over the given tunables.
func New(cfg config.OptimizerConfig, base *tunables.Groups) (*Adapter, error) {
	if base == nil {
		return nil, fmt.Errorf("tunables are required")
	}
	if err := config.ValidateOptimizer(&cfg); err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}

	space := base.Copy()
	var backend Backend
	switch cfg.Type {
	case TypeRandom:
		backend = NewRandomBackend(space, cfg.Seed, cfg.SpecialProb, cfg.MaxRetries)
	case TypeGrid:
		backend = NewGridBackend(space, cfg.GridPoints)
	case TypeLocalSearch:
		backend = NewLocalSearchBackend(space, cfg.Seed, cfg.StepFraction, cfg.SpecialProb, cfg.MaxRetries)
	default:
		return nil, &UnknownOptimizerError{Type: cfg.Type}
	}
	return NewAdapter(backend, base, cfg)
}
