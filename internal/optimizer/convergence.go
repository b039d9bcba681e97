package optimizer

import (
	"fmt"
	"math"

	"github.com/kkanellis/MLOS/pkg/config"
)

// Step is one successful registration in the optimizer history. Scores are
// normalized: lower is always better.
type Step struct {
	Iteration  int
	Score      float64
	ConfigHash string
}

// ConvergenceStrategy defines how to detect convergence
type ConvergenceStrategy interface {
	// CheckConvergence checks if optimization has converged based on history
	CheckConvergence(history []Step) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// DefaultConvergenceConfig returns a default convergence configuration
func DefaultConvergenceConfig() *config.ConvergenceConfig {
	return &config.ConvergenceConfig{
		Strategy:                "combined",
		NoImprovementIterations: 5,
		ImprovementThreshold:    0.01, // 1% improvement
		ScoreTolerance:          0.001,
		MinIterations:           3,
		PlateauIterations:       5,
	}
}

// NewConvergenceStrategy builds the strategy named in the config. Unset
// numeric fields take their defaults. Returns nil for "none" or a nil config.
func NewConvergenceStrategy(cfg *config.ConvergenceConfig) (ConvergenceStrategy, error) {
	if cfg == nil || cfg.Strategy == "" || cfg.Strategy == "none" {
		return nil, nil
	}
	c := *cfg
	def := DefaultConvergenceConfig()
	if c.NoImprovementIterations == 0 {
		c.NoImprovementIterations = def.NoImprovementIterations
	}
	if c.ImprovementThreshold == 0 {
		c.ImprovementThreshold = def.ImprovementThreshold
	}
	if c.ScoreTolerance == 0 {
		c.ScoreTolerance = def.ScoreTolerance
	}
	if c.MinIterations == 0 {
		c.MinIterations = def.MinIterations
	}
	if c.PlateauIterations == 0 {
		c.PlateauIterations = def.PlateauIterations
	}

	switch c.Strategy {
	case "no_improvement":
		return NewNoImprovementStrategy(&c), nil
	case "plateau":
		return NewPlateauStrategy(&c), nil
	case "improvement_threshold":
		return NewThresholdStrategy(&c), nil
	case "variance":
		return NewVarianceStrategy(&c), nil
	case "combined":
		return NewCombinedStrategy(&c), nil
	}
	return nil, fmt.Errorf("unknown convergence strategy: %s", c.Strategy)
}

// NoImprovementStrategy detects convergence when there's no improvement for N iterations
type NoImprovementStrategy struct {
	config *config.ConvergenceConfig
}

// NewNoImprovementStrategy creates a new no-improvement convergence strategy
func NewNoImprovementStrategy(cfg *config.ConvergenceConfig) *NoImprovementStrategy {
	if cfg == nil {
		cfg = DefaultConvergenceConfig()
	}
	return &NoImprovementStrategy{config: cfg}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(history []Step) (converged bool, reason string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}

	bestScore := math.Inf(1)
	bestIndex := -1
	for i, step := range history {
		if step.Score < bestScore {
			bestScore = step.Score
			bestIndex = i
		}
	}
	if bestIndex < 0 {
		return false, ""
	}

	sinceBest := len(history) - 1 - bestIndex
	if sinceBest >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no improvement for %d observations (best at iteration %d)", sinceBest, history[bestIndex].Iteration)
	}
	return false, ""
}

// PlateauStrategy detects convergence when the recent scores are all within
// the score tolerance of each other
type PlateauStrategy struct {
	config *config.ConvergenceConfig
}

// NewPlateauStrategy creates a new plateau convergence strategy
func NewPlateauStrategy(cfg *config.ConvergenceConfig) *PlateauStrategy {
	if cfg == nil {
		cfg = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: cfg}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(history []Step) (converged bool, reason string) {
	if len(history) < s.config.MinIterations || len(history) < s.config.PlateauIterations {
		return false, ""
	}

	recent := history[len(history)-s.config.PlateauIterations:]
	minScore, maxScore := recent[0].Score, recent[0].Score
	for _, step := range recent {
		minScore = math.Min(minScore, step.Score)
		maxScore = math.Max(maxScore, step.Score)
	}

	if scoreRange := maxScore - minScore; scoreRange <= s.config.ScoreTolerance {
		return true, fmt.Sprintf("score plateaued for %d observations (range: %.6f)", s.config.PlateauIterations, scoreRange)
	}
	return false, ""
}

// ThresholdStrategy detects convergence when the running best improves by less
// than the relative threshold over the recent window
type ThresholdStrategy struct {
	config *config.ConvergenceConfig
}

// NewThresholdStrategy creates a new improvement threshold convergence strategy
func NewThresholdStrategy(cfg *config.ConvergenceConfig) *ThresholdStrategy {
	if cfg == nil {
		cfg = DefaultConvergenceConfig()
	}
	return &ThresholdStrategy{config: cfg}
}

func (s *ThresholdStrategy) Name() string {
	return "improvement_threshold"
}

func (s *ThresholdStrategy) CheckConvergence(history []Step) (converged bool, reason string) {
	window := s.config.NoImprovementIterations
	if len(history) < s.config.MinIterations+1 || len(history) <= window || window < 1 {
		return false, ""
	}

	// Best score before the window vs best score at the end of it.
	before := math.Inf(1)
	for _, step := range history[:len(history)-window] {
		before = math.Min(before, step.Score)
	}
	after := before
	for _, step := range history[len(history)-window:] {
		after = math.Min(after, step.Score)
	}

	denom := math.Abs(before)
	if denom == 0 {
		denom = 1
	}
	improvement := (before - after) / denom
	if improvement < s.config.ImprovementThreshold {
		return true, fmt.Sprintf("improvement over last %d observations below threshold (%.4f%% < %.4f%%)",
			window, improvement*100, s.config.ImprovementThreshold*100)
	}
	return false, ""
}

// CombinedStrategy uses multiple strategies and converges if any strategy detects convergence
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewCombinedStrategy creates a new combined convergence strategy
func NewCombinedStrategy(cfg *config.ConvergenceConfig) *CombinedStrategy {
	if cfg == nil {
		cfg = DefaultConvergenceConfig()
	}
	return &CombinedStrategy{
		strategies: []ConvergenceStrategy{
			NewNoImprovementStrategy(cfg),
			NewPlateauStrategy(cfg),
			NewThresholdStrategy(cfg),
		},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(history []Step) (converged bool, reason string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(history); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}

// AddStrategy adds a custom strategy to the combined strategy
func (s *CombinedStrategy) AddStrategy(strategy ConvergenceStrategy) {
	s.strategies = append(s.strategies, strategy)
}

// VarianceStrategy detects convergence when the relative standard deviation
// of the recent scores drops below the improvement threshold
type VarianceStrategy struct {
	config *config.ConvergenceConfig
}

// NewVarianceStrategy creates a new variance-based convergence strategy
func NewVarianceStrategy(cfg *config.ConvergenceConfig) *VarianceStrategy {
	if cfg == nil {
		cfg = DefaultConvergenceConfig()
	}
	return &VarianceStrategy{config: cfg}
}

func (s *VarianceStrategy) Name() string {
	return "variance"
}

func (s *VarianceStrategy) CheckConvergence(history []Step) (converged bool, reason string) {
	if len(history) < s.config.MinIterations {
		return false, ""
	}

	window := s.config.PlateauIterations
	if len(history) < window {
		window = len(history)
	}
	recent := history[len(history)-window:]
	if len(recent) < 2 {
		return false, ""
	}

	mean := 0.0
	for _, step := range recent {
		mean += step.Score
	}
	mean /= float64(len(recent))

	variance := 0.0
	for _, step := range recent {
		diff := step.Score - mean
		variance += diff * diff
	}
	variance /= float64(len(recent))

	if mean != 0 {
		relStdDev := math.Sqrt(variance) / math.Abs(mean)
		if relStdDev < s.config.ImprovementThreshold {
			return true, fmt.Sprintf("low score variance (relative stddev: %.4f%%)", relStdDev*100)
		}
	}
	return false, ""
}
