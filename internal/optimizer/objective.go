package optimizer

import (
	"fmt"
	"math"
	"strings"
)

// Direction is the optimization direction of the target metric
type Direction string

const (
	Minimize Direction = "min"
	Maximize Direction = "max"
)

// ParseDirection parses "min"/"max" (and the long forms)
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	}
	return "", fmt.Errorf("invalid optimization direction: %q", s)
}

// Sign is +1 when minimizing and -1 when maximizing. Multiplying a score by
// the sign turns every objective into a minimization.
func (d Direction) Sign() float64 {
	if d == Maximize {
		return -1
	}
	return 1
}

// Objective extracts the score of a trial from its result metrics.
type Objective struct {
	Target    string
	Direction Direction
}

// Evaluate returns the raw (user direction) score of the target metric.
func (o Objective) Evaluate(results map[string]float64) (float64, error) {
	if results == nil {
		return 0, &InvalidMetricsError{Reason: "results are nil"}
	}
	v, ok := results[o.Target]
	if !ok {
		return 0, &InvalidMetricsError{Reason: fmt.Sprintf("target metric %q not reported", o.Target)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InvalidMetricsError{Reason: fmt.Sprintf("target metric %q is not finite: %g", o.Target, v)}
	}
	return v, nil
}

// Better reports whether raw score a beats b in the objective's direction.
func (o Objective) Better(a, b float64) bool {
	return a*o.Direction.Sign() < b*o.Direction.Sign()
}

func (o Objective) String() string {
	return fmt.Sprintf("%s(%s)", o.Direction, o.Target)
}
