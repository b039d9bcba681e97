package optimizer

import (
	"strings"
	"testing"

	"github.com/kkanellis/MLOS/pkg/config"
)

func steps(scores ...float64) []Step {
	out := make([]Step, len(scores))
	for i, s := range scores {
		out[i] = Step{Iteration: i + 1, Score: s}
	}
	return out
}

func TestNoImprovementStrategy(t *testing.T) {
	strategy := NewNoImprovementStrategy(&config.ConvergenceConfig{
		NoImprovementIterations: 3,
		MinIterations:           2,
	})

	converged, reason := strategy.CheckConvergence(steps(100, 100, 100, 100, 100))
	if !converged {
		t.Fatalf("expected convergence, got false")
	}
	if reason == "" {
		t.Fatalf("expected convergence reason")
	}

	// Recent improvement
	converged, _ = strategy.CheckConvergence(steps(100, 90, 90, 90))
	if converged {
		t.Fatalf("expected no convergence (recent improvement), got true")
	}

	// Too few observations
	converged, _ = strategy.CheckConvergence(steps(100))
	if converged {
		t.Fatalf("expected no convergence below min iterations")
	}
}

func TestPlateauStrategy(t *testing.T) {
	strategy := NewPlateauStrategy(&config.ConvergenceConfig{
		PlateauIterations: 3,
		ScoreTolerance:    0.01,
		MinIterations:     2,
	})

	converged, reason := strategy.CheckConvergence(steps(100.0, 100.01, 100.005, 100.002))
	if !converged {
		t.Fatalf("expected convergence (plateau), got false")
	}
	if reason == "" {
		t.Fatalf("expected convergence reason")
	}

	converged, _ = strategy.CheckConvergence(steps(100, 90, 95, 85))
	if converged {
		t.Fatalf("expected no convergence (varying scores), got true")
	}
}

func TestThresholdStrategy(t *testing.T) {
	strategy := NewThresholdStrategy(&config.ConvergenceConfig{
		NoImprovementIterations: 3,
		ImprovementThreshold:    0.01,
		MinIterations:           2,
	})

	converged, _ := strategy.CheckConvergence(steps(100, 99.9, 99.8, 99.8, 99.7))
	if !converged {
		t.Fatalf("expected convergence (small improvements), got false")
	}

	converged, _ = strategy.CheckConvergence(steps(100, 90, 80, 70, 60))
	if converged {
		t.Fatalf("expected no convergence (large improvements), got true")
	}
}

func TestThresholdStrategyNegativeScores(t *testing.T) {
	// Maximized objectives are normalized to negative scores.
	strategy := NewThresholdStrategy(&config.ConvergenceConfig{
		NoImprovementIterations: 2,
		ImprovementThreshold:    0.05,
		MinIterations:           1,
	})

	converged, _ := strategy.CheckConvergence(steps(-100, -150, -300))
	if converged {
		t.Fatalf("expected no convergence for a doubling score")
	}
	converged, _ = strategy.CheckConvergence(steps(-100, -100.5, -100.6))
	if !converged {
		t.Fatalf("expected convergence for a flat score")
	}
}

func TestVarianceStrategy(t *testing.T) {
	strategy := NewVarianceStrategy(&config.ConvergenceConfig{
		PlateauIterations:    3,
		ImprovementThreshold: 0.01,
		MinIterations:        2,
	})

	converged, _ := strategy.CheckConvergence(steps(50, 100, 100.1, 100.0, 100.05))
	if !converged {
		t.Fatalf("expected convergence (low variance), got false")
	}

	converged, _ = strategy.CheckConvergence(steps(10, 50, 100))
	if converged {
		t.Fatalf("expected no convergence (high variance), got true")
	}
}

func TestCombinedStrategy(t *testing.T) {
	strategy := NewCombinedStrategy(&config.ConvergenceConfig{
		NoImprovementIterations: 3,
		PlateauIterations:       10,
		ScoreTolerance:          0.001,
		ImprovementThreshold:    0.0,
		MinIterations:           2,
	})

	converged, reason := strategy.CheckConvergence(steps(90, 100, 100, 100, 100))
	if !converged {
		t.Fatalf("expected convergence, got false")
	}
	if !strings.HasPrefix(reason, "no_improvement:") {
		t.Fatalf("expected reason from no_improvement strategy, got %q", reason)
	}
}

func TestNewConvergenceStrategy(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.ConvergenceConfig
		wantName string
		wantErr  bool
	}{
		{"nil config", nil, "", false},
		{"none", &config.ConvergenceConfig{Strategy: "none"}, "", false},
		{"plateau", &config.ConvergenceConfig{Strategy: "plateau"}, "plateau", false},
		{"threshold", &config.ConvergenceConfig{Strategy: "improvement_threshold"}, "improvement_threshold", false},
		{"combined", &config.ConvergenceConfig{Strategy: "combined"}, "combined", false},
		{"unknown", &config.ConvergenceConfig{Strategy: "bayesian"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := NewConvergenceStrategy(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantName == "" {
				if strategy != nil {
					t.Fatalf("expected no strategy, got %s", strategy.Name())
				}
				return
			}
			if strategy == nil || strategy.Name() != tt.wantName {
				t.Fatalf("expected %s strategy, got %v", tt.wantName, strategy)
			}
		})
	}

	// Unset fields take defaults.
	strategy, _ := NewConvergenceStrategy(&config.ConvergenceConfig{Strategy: "plateau"})
	if p := strategy.(*PlateauStrategy); p.config.PlateauIterations != DefaultConvergenceConfig().PlateauIterations {
		t.Fatalf("expected default plateau iterations, got %d", p.config.PlateauIterations)
	}
}
