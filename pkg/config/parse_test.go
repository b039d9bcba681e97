package config

import "testing"

const minimalConfig = `
environment:
  class: mock
  name: bench
`

func TestParseConfigYAMLStringDefaults(t *testing.T) {
	cfg, err := ParseConfigYAMLString(minimalConfig)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage memory, got %s", cfg.Storage.Type)
	}
	if cfg.ConfigRepeatCount != 1 {
		t.Errorf("Expected default repeat count 1, got %d", cfg.ConfigRepeatCount)
	}
	opt := cfg.Optimizer
	if opt.Type != "random" || opt.Target != "score" || opt.Direction != "min" {
		t.Errorf("Unexpected optimizer defaults: %+v", opt)
	}
	if !opt.StartWithDefaults() {
		t.Error("use_defaults should default to true")
	}
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfigYAMLString(`{
  "optimizer": {"type": "grid", "grid_points": 3, "use_defaults": false},
  "environment": {"class": "mock", "name": "bench"}
}`)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}
	if cfg.Optimizer.GridPoints != 3 {
		t.Errorf("Expected 3 grid points, got %d", cfg.Optimizer.GridPoints)
	}
	if cfg.Optimizer.StartWithDefaults() {
		t.Error("Expected use_defaults false")
	}
}

func TestParseConfigYAMLStringInvalid(t *testing.T) {
	tests := []struct {
		name     string
		yamlText string
	}{
		{
			name:     "Missing environment",
			yamlText: `log_level: info`,
		},
		{
			name: "Unknown environment class",
			yamlText: `
environment: {class: docker, name: x}`,
		},
		{
			name: "Invalid log level",
			yamlText: `
log_level: loud
environment: {class: mock, name: x}`,
		},
		{
			name: "Invalid direction",
			yamlText: `
optimizer: {optimization_direction: up}
environment: {class: mock, name: x}`,
		},
		{
			name: "Special probability above one",
			yamlText: `
optimizer: {special_prob: 1.5}
environment: {class: mock, name: x}`,
		},
		{
			name: "Unknown storage",
			yamlText: `
storage: {type: postgres}
environment: {class: mock, name: x}`,
		},
		{
			name: "Invalid experiment id",
			yamlText: `
experiment_id: "has spaces"
environment: {class: mock, name: x}`,
		},
		{
			name: "Composite without children",
			yamlText: `
environment: {class: composite, name: root}`,
		},
		{
			name: "Duplicate child names",
			yamlText: `
environment:
  class: composite
  name: root
  children:
    - {class: mock, name: a}
    - {class: mock, name: a}`,
		},
		{
			name: "Script without run",
			yamlText: `
environment: {class: script, name: s, script: {setup: [echo hi]}}`,
		},
		{
			name: "Inverted mock range",
			yamlText: `
environment: {class: mock, name: m, mock: {range: [10, 1]}}`,
		},
		{
			name: "Convergence min iterations above max",
			yamlText: `
optimizer: {max_iterations: 3, convergence: {strategy: plateau, min_iterations: 10}}
environment: {class: mock, name: x}`,
		},
		{
			name:     "Malformed yaml",
			yamlText: `environment: [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfigYAMLString(tt.yamlText); err == nil {
				t.Fatal("Expected error")
			}
		})
	}
}

func TestValidateOptimizer(t *testing.T) {
	o := DefaultOptimizerConfig()
	if err := ValidateOptimizer(&o); err != nil {
		t.Fatalf("default optimizer config should be valid: %v", err)
	}
	o.GridPoints = -1
	if err := ValidateOptimizer(&o); err == nil {
		t.Error("Expected error for negative grid points")
	}
}
