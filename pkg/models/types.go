package models

import (
	"sync"
	"time"
)

// Experiment describes one tuning experiment: a target metric optimized over
// the tunables of a root environment.
type Experiment struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	RootEnv     string    `json:"root_env"`
	Target      string    `json:"optimization_target"`
	Direction   string    `json:"optimization_direction"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trial is one evaluation of a configuration within an experiment.
type Trial struct {
	ExperimentID string             `json:"experiment_id"`
	TrialID      int64              `json:"trial_id"`
	ConfigID     int64              `json:"config_id"`
	ConfigHash   string             `json:"config_hash"`
	Status       Status             `json:"status"`
	TsStart      time.Time          `json:"ts_start"`
	TsEnd        *time.Time         `json:"ts_end,omitempty"`
	Config       map[string]string  `json:"config"`
	Params       map[string]string  `json:"params,omitempty"`
	Results      map[string]float64 `json:"results,omitempty"`
}

// Score returns the value of the given result metric.
func (t *Trial) Score(target string) (float64, bool) {
	v, ok := t.Results[target]
	return v, ok
}

// StatusCounter counts trials by status. Safe for concurrent use.
type StatusCounter struct {
	mu     sync.RWMutex
	counts map[Status]int
}

// Add increments the counter of a status.
func (c *StatusCounter) Add(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[Status]int)
	}
	c.counts[s]++
}

// Get returns the number of trials recorded with a status.
func (c *StatusCounter) Get(s Status) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[s]
}

// Snapshot returns the counts keyed by status name.
func (c *StatusCounter) Snapshot() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.counts))
	for s, n := range c.counts {
		out[s.String()] = n
	}
	return out
}
