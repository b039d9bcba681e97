package optimizer

import (
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// RandomBackend samples every tunable uniformly from its domain.
type RandomBackend struct {
	history
	rng         *utils.RandSource
	specialProb float64
	maxRetries  int
}

// NewRandomBackend creates a random search backend over the given space
func NewRandomBackend(space *tunables.Groups, seed int64, specialProb float64, maxRetries int) *RandomBackend {
	if maxRetries <= 0 {
		maxRetries = 100
	}
	return &RandomBackend{
		history:     newHistory(space),
		rng:         utils.NewRandSource(seed),
		specialProb: specialProb,
		maxRetries:  maxRetries,
	}
}

func (b *RandomBackend) Name() string {
	return "random"
}

func (b *RandomBackend) Suggest(useDefaults bool) (map[string]any, error) {
	if useDefaults {
		if values, ok := b.defaults(); ok {
			return b.markPending(values), nil
		}
	}
	values, ok := randomFresh(b.rng, &b.history, b.specialProb, b.maxRetries)
	if !ok {
		return nil, &BackendExhaustionError{Backend: b.Name(), Attempts: b.maxRetries}
	}
	return b.markPending(values), nil
}
