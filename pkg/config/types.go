package config

// Config represents the main benchmark/tuning experiment configuration
type Config struct {
	ExperimentID      string            `yaml:"experiment_id" validate:"omitempty,max=128"`
	Description       string            `yaml:"description,omitempty"`
	ConfigRepeatCount int               `yaml:"config_repeat_count" validate:"gte=0"`
	LogLevel          string            `yaml:"log_level"`
	LogFile           string            `yaml:"log_file,omitempty"`
	Storage           StorageConfig     `yaml:"storage"`
	Optimizer         OptimizerConfig   `yaml:"optimizer"`
	Environment       EnvironmentConfig `yaml:"environment"`
	Server            ServerConfig      `yaml:"server"`
	// Tunables lists the tunables files merged into the shared registry
	Tunables []string `yaml:"tunables,omitempty"`
	// TunableValues are assigned to the registry before the first suggestion
	TunableValues map[string]any `yaml:"tunable_values,omitempty"`
	// Globals are substituted into $name references of const_args
	Globals map[string]string `yaml:"globals,omitempty"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type        string `yaml:"type" validate:"omitempty,oneof=sqlite memory"`
	Path        string `yaml:"path,omitempty"`
	CacheSize   int    `yaml:"cache_size" validate:"gte=0"`
	BusyRetries int    `yaml:"busy_retries" validate:"gte=0"`
	BusyBackoff string `yaml:"busy_backoff,omitempty" validate:"omitempty,oneof=constant linear exponential"`
	BusyBaseMs  int    `yaml:"busy_base_ms" validate:"gte=0"`
}

// OptimizerConfig configures the optimizer adapter and its backend
type OptimizerConfig struct {
	Type          string `yaml:"type"`
	MaxIterations int    `yaml:"max_iterations" validate:"gte=0"`
	Seed          int64  `yaml:"seed"`
	// UseDefaults suggests the default configuration first; on by default
	UseDefaults *bool   `yaml:"use_defaults,omitempty"`
	Target      string  `yaml:"optimization_target"`
	Direction   string  `yaml:"optimization_direction" validate:"omitempty,oneof=min max"`
	GridPoints  int     `yaml:"grid_points" validate:"gte=0"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0"`
	SpecialProb float64 `yaml:"special_prob" validate:"gte=0,lte=1"`
	// StepFraction is the local search step as a fraction of a numeric range
	StepFraction float64            `yaml:"step_fraction" validate:"gte=0,lte=1"`
	Convergence  *ConvergenceConfig `yaml:"convergence,omitempty"`
}

// StartWithDefaults reports whether the first suggestion is the default configuration
func (o OptimizerConfig) StartWithDefaults() bool {
	return o.UseDefaults == nil || *o.UseDefaults
}

// ConvergenceConfig configures early stopping on the score history
type ConvergenceConfig struct {
	Strategy string `yaml:"strategy" validate:"omitempty,oneof=none no_improvement plateau improvement_threshold variance combined"`
	// NoImprovementIterations is the number of iterations without improvement before stopping
	NoImprovementIterations int `yaml:"no_improvement_iterations" validate:"gte=0"`
	// ImprovementThreshold is the minimum relative improvement to consider significant
	ImprovementThreshold float64 `yaml:"improvement_threshold" validate:"gte=0"`
	// ScoreTolerance is the absolute tolerance for two scores to be considered equal
	ScoreTolerance float64 `yaml:"score_tolerance" validate:"gte=0"`
	MinIterations  int     `yaml:"min_iterations" validate:"gte=0"`
	// PlateauIterations is the window of similar scores before stopping
	PlateauIterations int `yaml:"plateau_iterations" validate:"gte=0"`
}

// EnvironmentConfig describes a benchmark environment. Children are only used
// by the composite class.
type EnvironmentConfig struct {
	Class         string              `yaml:"class" validate:"required,oneof=mock script composite"`
	Name          string              `yaml:"name" validate:"required"`
	TunableParams []string            `yaml:"tunable_params,omitempty"`
	ConstArgs     map[string]any      `yaml:"const_args,omitempty"`
	Mock          *MockConfig         `yaml:"mock,omitempty"`
	Script        *ScriptConfig       `yaml:"script,omitempty"`
	Children      []EnvironmentConfig `yaml:"children,omitempty" validate:"dive"`
}

// MockConfig configures the synthetic benchmark
type MockConfig struct {
	Seed int64 `yaml:"seed"`
	// Range is the [min, max] interval of the reported score
	Range   []float64 `yaml:"range,omitempty" validate:"omitempty,len=2"`
	Metrics []string  `yaml:"metrics,omitempty"`
	// NoiseStdDev is the stddev of the gaussian noise as a fraction of the range
	NoiseStdDev float64 `yaml:"noise_stddev" validate:"gte=0"`
}

// ScriptConfig configures the script environment
type ScriptConfig struct {
	Setup    []string `yaml:"setup,omitempty"`
	Run      []string `yaml:"run,omitempty"`
	Teardown []string `yaml:"teardown,omitempty"`
	Cwd      string   `yaml:"cwd,omitempty"`
	Shell    string   `yaml:"shell,omitempty"`
	// ShellEnvParams lists the params exported to the scripts as environment variables
	ShellEnvParams []string `yaml:"shell_env_params,omitempty"`
	Timeout        string   `yaml:"timeout,omitempty"`
}

// ServerConfig configures the read-only status surface
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr,omitempty"`
	GRPCAddr string `yaml:"grpc_addr,omitempty"`
}
