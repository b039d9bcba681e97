package main

import (
	"fmt"
	"maps"
	"path/filepath"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// launcher is a loaded experiment: the config with globals applied and the
// shared tunables registry.
type launcher struct {
	cfg      *config.Config
	registry *tunables.Groups
}

// newLauncher loads the config named by --config, applies the globals files
// and --param overrides, and loads every tunables file into one registry.
func newLauncher() (*launcher, error) {
	if configFile == "" {
		return nil, fmt.Errorf("--config is required")
	}
	path, err := config.ResolvePath(configFile, configPaths)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	// Relative files are looked up next to the config first.
	search := append([]string{filepath.Dir(path)}, configPaths...)

	globals := make(map[string]string)
	for _, name := range globalFiles {
		gpath, err := config.ResolvePath(name, search)
		if err != nil {
			return nil, err
		}
		values, err := config.LoadGlobals(gpath)
		if err != nil {
			return nil, err
		}
		maps.Copy(globals, values)
	}
	overrides, err := config.ParseParams(params)
	if err != nil {
		return nil, err
	}
	maps.Copy(globals, overrides)
	if err := config.ApplyGlobals(cfg, globals); err != nil {
		return nil, err
	}
	if cfg.ExperimentID == "" {
		cfg.ExperimentID = utils.GenerateExperimentID("exp")
	}
	if logLevel == "" && logFile == "" {
		if err := setupLogging(cfg.LogLevel, cfg.LogFile); err != nil {
			return nil, err
		}
	}

	registry := tunables.NewGroups()
	for _, name := range cfg.Tunables {
		tpath, err := config.ResolvePath(name, search)
		if err != nil {
			return nil, err
		}
		groups, err := tunables.LoadGroups(tpath)
		if err != nil {
			return nil, err
		}
		if _, err := registry.Merge(groups); err != nil {
			return nil, fmt.Errorf("tunables file %s: %w", tpath, err)
		}
	}
	if len(cfg.TunableValues) > 0 {
		if err := registry.Assign(cfg.TunableValues); err != nil {
			return nil, fmt.Errorf("tunable_values: %w", err)
		}
		if err := registry.Reset(); err != nil {
			return nil, err
		}
	}

	logger.Info("loaded experiment config",
		"config", path,
		"experiment_id", cfg.ExperimentID,
		"tunables", registry.Len(),
		"groups", len(registry.GroupNames()))
	return &launcher{cfg: cfg, registry: registry}, nil
}
