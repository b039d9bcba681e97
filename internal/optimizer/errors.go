package optimizer

import "fmt"

// UnknownOptimizerError indicates an unknown optimizer type
type UnknownOptimizerError struct {
	Type string
}

func (e *UnknownOptimizerError) Error() string {
	return "unknown optimizer type: " + e.Type
}

// BackendExhaustionError indicates that the backend could not produce a
// configuration that has not been evaluated yet.
type BackendExhaustionError struct {
	Backend  string
	Attempts int
}

func (e *BackendExhaustionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("optimizer %s exhausted: no unseen configuration after %d attempts", e.Backend, e.Attempts)
	}
	return fmt.Sprintf("optimizer %s exhausted: search space fully explored", e.Backend)
}

// DuplicateRegistrationWarning is reported (not returned) when the same
// configuration is registered again with the same score.
type DuplicateRegistrationWarning struct {
	ConfigHash string
	Score      float64
}

func (e *DuplicateRegistrationWarning) Error() string {
	return fmt.Sprintf("duplicate registration of config %.12s with score %g", e.ConfigHash, e.Score)
}

// InvalidMetricsError indicates results that cannot be turned into a score
type InvalidMetricsError struct {
	Reason string
}

func (e *InvalidMetricsError) Error() string {
	return "invalid metrics: " + e.Reason
}
