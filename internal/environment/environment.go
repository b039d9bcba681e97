package environment

import (
	"context"
	"fmt"
	"maps"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// Environment is a benchmark target: it is configured with tunable values,
// runs a benchmark and reports metrics.
type Environment interface {
	Name() string
	// Tunables returns the groups this environment is configured by. The
	// groups alias the shared registry.
	Tunables() *tunables.Groups
	// Setup applies the values of t to the environment tunables and prepares
	// the environment. It returns false when the environment is not ready.
	Setup(ctx context.Context, t *tunables.Groups) (bool, error)
	// Run executes the benchmark. Results are nil unless the status is
	// succeeded.
	Run(ctx context.Context) (models.Status, map[string]float64, error)
	// Teardown releases the environment. It is safe to call more than once.
	Teardown(ctx context.Context) error
	// Params returns the const args merged with the current tunable values.
	Params() map[string]any
}

// base holds the state shared by all environment classes.
type base struct {
	name       string
	tunables   *tunables.Groups
	constArgs  map[string]any
	configured bool
	ready      bool
	// applied holds the tunable values of the last setup. Groups are shared
	// between environments, so their dirty flags cannot tell this
	// environment what changed since it last ran setup.
	applied map[string]any
}

func newBase(cfg config.EnvironmentConfig, registry *tunables.Groups, globals map[string]string) (*base, error) {
	groups := tunables.NewGroups()
	if len(cfg.TunableParams) > 0 {
		if registry == nil {
			return nil, fmt.Errorf("environment %s: tunable_params set but no tunables loaded", cfg.Name)
		}
		sub, err := registry.Subgroup(cfg.TunableParams...)
		if err != nil {
			return nil, fmt.Errorf("environment %s: %w", cfg.Name, err)
		}
		groups = sub
	}
	return &base{
		name:      cfg.Name,
		tunables:  groups,
		constArgs: config.ExpandGlobals(cfg.ConstArgs, globals),
	}, nil
}

func (b *base) Name() string               { return b.name }
func (b *base) Tunables() *tunables.Groups { return b.tunables }

func (b *base) Params() map[string]any {
	params := maps.Clone(b.constArgs)
	if params == nil {
		params = make(map[string]any)
	}
	maps.Copy(params, b.tunables.Values())
	return params
}

// setup copies the values of t that belong to this environment and reports
// whether any of them differ from the previous setup of this environment.
// The first setup always counts as a change.
func (b *base) setup(t *tunables.Groups) (bool, error) {
	incoming := t.Values()
	changes := make(map[string]any)
	for _, e := range b.tunables.Tunables() {
		v, ok := incoming[e.Tunable.Name()]
		if ok && v != e.Tunable.Value() {
			changes[e.Tunable.Name()] = v
		}
	}
	if len(changes) > 0 {
		if err := b.tunables.Assign(changes); err != nil {
			return false, fmt.Errorf("environment %s: %w", b.name, err)
		}
	}

	current := b.tunables.Values()
	updated := !b.configured || !maps.Equal(current, b.applied)
	if err := b.tunables.Reset(); err != nil {
		return false, err
	}
	b.applied = current
	b.configured = true
	logger.Debug("environment setup", "environment", b.name, "updated", updated, "changes", len(changes))
	return updated, nil
}

func (b *base) String() string {
	return b.name
}
