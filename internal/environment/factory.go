package environment

import (
	"fmt"

	"github.com/kkanellis/MLOS/internal/services"
	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// Environment classes understood by Factory
const (
	ClassMock      = "mock"
	ClassScript    = "script"
	ClassComposite = "composite"
)

// Factory builds environments from config. Every environment selects its
// tunables from Registry, so environments sharing a group see the same values.
type Factory struct {
	Registry *tunables.Groups
	Globals  map[string]string
	Exec     services.RemoteExec
}

// Build creates the environment tree described by cfg.
func (f *Factory) Build(cfg config.EnvironmentConfig) (Environment, error) {
	switch cfg.Class {
	case ClassMock:
		return NewMockEnv(cfg, f.Registry, f.Globals)
	case ClassScript:
		exec := f.Exec
		if exec == nil {
			exec = services.NewLocalExecService()
		}
		return NewScriptEnv(cfg, f.Registry, f.Globals, exec)
	case ClassComposite:
		children := make([]Environment, 0, len(cfg.Children))
		for _, childCfg := range cfg.Children {
			child, err := f.Build(childCfg)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewCompositeEnv(cfg, f.Registry, f.Globals, children)
	}
	return nil, fmt.Errorf("unknown environment class: %s", cfg.Class)
}
