package environment

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// CompositeEnv runs its children in order. Its tunables are the union of
// the children's.
type CompositeEnv struct {
	*base
	children []Environment
}

// NewCompositeEnv combines the children, merging their tunables. Children
// sharing a group must agree on its definition.
func NewCompositeEnv(cfg config.EnvironmentConfig, registry *tunables.Groups, globals map[string]string, children []Environment) (*CompositeEnv, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("environment %s: composite has no children", cfg.Name)
	}
	b, err := newBase(cfg, registry, globals)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if _, err := b.tunables.Merge(child.Tunables()); err != nil {
			return nil, fmt.Errorf("environment %s: child %s: %w", cfg.Name, child.Name(), err)
		}
	}
	return &CompositeEnv{base: b, children: children}, nil
}

// Children returns the child environments in execution order.
func (e *CompositeEnv) Children() []Environment {
	return e.children
}

func (e *CompositeEnv) Setup(ctx context.Context, t *tunables.Groups) (bool, error) {
	e.ready = false
	for _, child := range e.children {
		ready, err := child.Setup(ctx, t)
		if err != nil {
			return false, err
		}
		if !ready {
			logger.Warn("child environment not ready", "environment", e.name, "child", child.Name())
			return false, nil
		}
	}
	// Children assigned the shared groups; only the dirty flags are left.
	if _, err := e.setup(t); err != nil {
		return false, err
	}
	e.ready = true
	return true, nil
}

// Run runs every child and reports the results of the last one. The first
// child that does not succeed stops the run.
func (e *CompositeEnv) Run(ctx context.Context) (models.Status, map[string]float64, error) {
	if !e.ready {
		return models.StatusPending, nil, nil
	}
	var (
		status  models.Status
		results map[string]float64
	)
	for _, child := range e.children {
		var err error
		status, results, err = child.Run(ctx)
		if err != nil {
			return status, nil, err
		}
		if !status.IsSucceeded() {
			logger.Warn("child benchmark did not succeed", "environment", e.name, "child", child.Name(), "status", status.String())
			return status, nil, nil
		}
	}
	return status, results, nil
}

// Teardown tears the children down in reverse order. Every child is torn
// down even if some fail.
func (e *CompositeEnv) Teardown(ctx context.Context) error {
	e.ready = false
	var errs []error
	for i := len(e.children) - 1; i >= 0; i-- {
		if err := e.children[i].Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Params returns the composite const args overlaid with the params of every
// child.
func (e *CompositeEnv) Params() map[string]any {
	params := e.base.Params()
	for _, child := range e.children {
		maps.Copy(params, child.Params())
	}
	return params
}
