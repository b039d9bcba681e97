package environment

import (
	"context"
	"fmt"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// MockEnv is a synthetic benchmark. Its score is a deterministic function of
// the normalized tunable values, scaled to a range, plus optional noise.
type MockEnv struct {
	*base
	rng     *utils.RandSource
	min     float64
	max     float64
	metrics []string
	noise   float64
}

// NewMockEnv creates a mock environment.
func NewMockEnv(cfg config.EnvironmentConfig, registry *tunables.Groups, globals map[string]string) (*MockEnv, error) {
	b, err := newBase(cfg, registry, globals)
	if err != nil {
		return nil, err
	}
	mc := config.MockConfig{}
	if cfg.Mock != nil {
		mc = *cfg.Mock
	}
	env := &MockEnv{
		base:    b,
		rng:     utils.NewRandSource(mc.Seed),
		min:     0,
		max:     1,
		metrics: mc.Metrics,
		noise:   mc.NoiseStdDev,
	}
	if len(mc.Range) == 2 {
		env.min, env.max = mc.Range[0], mc.Range[1]
	}
	if env.min > env.max {
		return nil, fmt.Errorf("environment %s: invalid range [%g, %g]", cfg.Name, env.min, env.max)
	}
	if len(env.metrics) == 0 {
		env.metrics = []string{"score"}
	}
	return env, nil
}

func (e *MockEnv) Setup(ctx context.Context, t *tunables.Groups) (bool, error) {
	if _, err := e.setup(t); err != nil {
		return false, err
	}
	e.ready = true
	return true, nil
}

func (e *MockEnv) Run(ctx context.Context) (models.Status, map[string]float64, error) {
	if !e.ready {
		return models.StatusPending, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return models.StatusCanceled, nil, nil
	}

	score := e.Score()
	width := e.max - e.min
	results := make(map[string]float64, len(e.metrics))
	for _, m := range e.metrics {
		v := score
		if e.noise > 0 {
			v += e.rng.NormFloat64(0, e.noise*width)
		}
		results[m] = v
	}
	logger.Debug("mock benchmark", "environment", e.name, "results", results)
	return models.StatusSucceeded, results, nil
}

// Score returns the noiseless score of the current tunable values.
func (e *MockEnv) Score() float64 {
	entries := e.tunables.Tunables()
	if len(entries) == 0 {
		return e.min
	}
	var sum float64
	for _, entry := range entries {
		sum += normalized(entry.Tunable)
	}
	return e.min + (e.max-e.min)*sum/float64(len(entries))
}

func (e *MockEnv) Teardown(ctx context.Context) error {
	e.ready = false
	return nil
}

// normalized maps a tunable value to [0, 1]. Categorical values map by their
// position; numeric values outside the range (specials) map to 0.
func normalized(t *tunables.Tunable) float64 {
	switch d := t.Domain().(type) {
	case tunables.CategoricalDomain:
		if len(d.Values) < 2 {
			return 0
		}
		for i, v := range d.Values {
			if v == t.Value() {
				return float64(i) / float64(len(d.Values)-1)
			}
		}
	case tunables.IntDomain:
		return utils.Normalize(float64(t.Value().(int64)), float64(d.Min), float64(d.Max))
	case tunables.FloatDomain:
		return utils.Normalize(t.Value().(float64), d.Min, d.Max)
	}
	return 0
}
