package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/utils"
)

var validate = validator.New()

// LoadConfig loads and parses an experiment configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadGlobals reads KEY=value files (dotenv format). Later files override
// earlier ones.
func LoadGlobals(paths ...string) (map[string]string, error) {
	globals := make(map[string]string)
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read globals file %s: %w", path, err)
		}
		for k, v := range values {
			globals[k] = v
		}
	}
	return globals, nil
}

// ParseParams parses command line overrides of the form key=value
func ParseParams(params []string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(strings.TrimLeft(key, "-"))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", p)
		}
		out[key] = value
	}
	return out, nil
}

// ApplyGlobals merges globals into the config. Keys naming a top level
// setting override it; every key is also kept in cfg.Globals for $name
// expansion of const_args. The result is validated again.
func ApplyGlobals(cfg *Config, globals map[string]string) error {
	if cfg.Globals == nil {
		cfg.Globals = make(map[string]string, len(globals))
	}
	for key, value := range globals {
		cfg.Globals[key] = value
		if err := applyOverride(cfg, key, value); err != nil {
			return fmt.Errorf("global %s: %w", key, err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyOverride(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "experiment_id", "experimentId":
		cfg.ExperimentID = value
	case "config_repeat_count", "trial_config_repeat_count":
		cfg.ConfigRepeatCount, err = strconv.Atoi(value)
	case "log_level":
		cfg.LogLevel = value
	case "optimization_target":
		cfg.Optimizer.Target = value
	case "optimization_direction":
		cfg.Optimizer.Direction = value
	case "max_iterations", "max_suggestions":
		cfg.Optimizer.MaxIterations, err = strconv.Atoi(value)
	case "seed":
		cfg.Optimizer.Seed, err = strconv.ParseInt(value, 10, 64)
	}
	return err
}

// ExpandGlobals replaces "$name" string values with the matching global.
// Unknown references are left as-is.
func ExpandGlobals(args map[string]any, globals map[string]string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "$") {
			if g, found := globals[strings.TrimPrefix(s, "$")]; found {
				out[k] = g
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ResolvePath finds a file by trying it as given, then relative to each of
// the search paths in order.
func ResolvePath(name string, searchPaths []string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	candidates := []string{name}
	for _, dir := range searchPaths {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("file %s not found in %v", name, searchPaths)
}

// applyDefaults fills in unset optional settings
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ConfigRepeatCount == 0 {
		cfg.ConfigRepeatCount = 1
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Type == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "mlos_bench.sqlite"
	}
	if cfg.Storage.BusyRetries == 0 {
		cfg.Storage.BusyRetries = 5
	}
	if cfg.Storage.BusyBaseMs == 0 {
		cfg.Storage.BusyBaseMs = 20
	}
	cfg.Optimizer.applyDefaults()
}

// DefaultOptimizerConfig returns an optimizer config with every default set
func DefaultOptimizerConfig() OptimizerConfig {
	var o OptimizerConfig
	o.applyDefaults()
	return o
}

func (o *OptimizerConfig) applyDefaults() {
	if o.Type == "" {
		o.Type = "random"
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = 100
	}
	if o.Target == "" {
		o.Target = "score"
	}
	if o.Direction == "" {
		o.Direction = "min"
	}
	if o.GridPoints == 0 {
		o.GridPoints = 5
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 100
	}
	if o.StepFraction == 0 {
		o.StepFraction = 0.1
	}
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return describeValidation(err)
	}

	if !logger.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.ExperimentID != "" && !utils.IsValidID(cfg.ExperimentID) {
		return fmt.Errorf("invalid experiment_id: %q", cfg.ExperimentID)
	}
	if cfg.Storage.Type == "sqlite" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage: sqlite requires a path")
	}
	if err := validateOptimizer(&cfg.Optimizer); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := validateEnvironment(&cfg.Environment); err != nil {
		return fmt.Errorf("environment %s: %w", cfg.Environment.Name, err)
	}
	return nil
}

// ValidateOptimizer checks an optimizer config on its own, as used by
// optimizers built outside of a full experiment config.
func ValidateOptimizer(o *OptimizerConfig) error {
	if err := validate.Struct(o); err != nil {
		return describeValidation(err)
	}
	return validateOptimizer(o)
}

func validateOptimizer(o *OptimizerConfig) error {
	if o.Type == "" {
		return fmt.Errorf("type cannot be empty")
	}
	if o.Target == "" {
		return fmt.Errorf("optimization_target cannot be empty")
	}
	if c := o.Convergence; c != nil && c.Strategy != "" && c.Strategy != "none" {
		if c.MinIterations > o.MaxIterations {
			return fmt.Errorf("convergence min_iterations %d exceeds max_iterations %d", c.MinIterations, o.MaxIterations)
		}
	}
	return nil
}

func validateEnvironment(env *EnvironmentConfig) error {
	switch env.Class {
	case "composite":
		if len(env.Children) == 0 {
			return fmt.Errorf("composite environment requires children")
		}
		names := make(map[string]bool)
		for i := range env.Children {
			child := &env.Children[i]
			if names[child.Name] {
				return fmt.Errorf("duplicate child environment name: %s", child.Name)
			}
			names[child.Name] = true
			if err := validateEnvironment(child); err != nil {
				return fmt.Errorf("child %s: %w", child.Name, err)
			}
		}
	case "script":
		if len(env.Children) > 0 {
			return fmt.Errorf("script environment cannot have children")
		}
		if env.Script == nil || len(env.Script.Run) == 0 {
			return fmt.Errorf("script environment requires run commands")
		}
	case "mock":
		if len(env.Children) > 0 {
			return fmt.Errorf("mock environment cannot have children")
		}
		if env.Mock != nil && len(env.Mock.Range) == 2 && env.Mock.Range[0] > env.Mock.Range[1] {
			return fmt.Errorf("mock range min %g exceeds max %g", env.Mock.Range[0], env.Mock.Range[1])
		}
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("field %s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("field %s failed %s", fe.Namespace(), fe.Tag())
}
