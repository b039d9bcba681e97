package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

var (
	// ErrNotFound is returned for unknown experiments and trials.
	ErrNotFound = errors.New("not found")
	// ErrObjectiveMismatch is returned when an existing experiment is resumed
	// with a different optimization target or direction.
	ErrObjectiveMismatch = errors.New("objective mismatch")
)

// ExperimentSpec identifies an experiment and its optimization objective.
type ExperimentSpec struct {
	ID          string
	Description string
	RootEnv     string
	Target      string
	Direction   string
}

// Storage persists experiments and their trials.
type Storage interface {
	// Experiment creates the experiment or resumes the existing one.
	Experiment(ctx context.Context, spec ExperimentSpec) (Experiment, error)
	GetExperiment(ctx context.Context, id string) (Experiment, error)
	ListExperiments(ctx context.Context) ([]models.Experiment, error)
	Close() error
}

// Experiment records the trials of one experiment.
type Experiment interface {
	ID() string
	Info() models.Experiment
	// NewTrial stores the configuration (deduplicated by content hash) and
	// creates a pending trial for it.
	NewTrial(ctx context.Context, t *tunables.Groups, params map[string]any) (*models.Trial, error)
	// UpdateTrial records a status change. Results are kept only for
	// succeeded trials.
	UpdateTrial(ctx context.Context, trialID int64, status models.Status, ts time.Time, results map[string]float64) error
	// Trials returns every trial ordered by trial id.
	Trials(ctx context.Context) ([]models.Trial, error)
	// LoadHistory returns the completed trials in the shape expected by
	// Optimizer.BulkRegister, scored by the experiment target.
	LoadHistory(ctx context.Context) (configs []map[string]any, scores []*float64, statuses []models.Status, err error)
}

// Option configures a storage backend.
type Option func(*options)

type options struct {
	clock utils.Clock
}

// WithClock sets the clock used for experiment and status timestamps.
func WithClock(clock utils.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: utils.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New opens the storage backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig, opts ...Option) (Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(opts...), nil
	case "sqlite":
		return OpenSQLite(ctx, cfg, opts...)
	}
	return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
}

func (s ExperimentSpec) validate() error {
	if !utils.IsValidID(s.ID) {
		return fmt.Errorf("invalid experiment id: %q", s.ID)
	}
	if s.Target == "" {
		return fmt.Errorf("experiment %s: optimization target is required", s.ID)
	}
	if s.Direction != "min" && s.Direction != "max" {
		return fmt.Errorf("experiment %s: invalid optimization direction: %q", s.ID, s.Direction)
	}
	return nil
}

func (s ExperimentSpec) checkObjective(existing models.Experiment) error {
	if existing.Target != s.Target || existing.Direction != s.Direction {
		return fmt.Errorf("experiment %s is %s %s, not %s %s: %w",
			s.ID, existing.Direction, existing.Target, s.Direction, s.Target, ErrObjectiveMismatch)
	}
	return nil
}

// formatParams renders trial parameters the same way tunable values are
// rendered for hashing.
func formatParams(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = tunables.FormatValue(v)
	}
	return out
}

func configValues(records []tunables.ParamRecord) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Name] = r.Value
	}
	return out
}

// historyFromTrials converts stored trials into optimizer warm-start rows.
// Values stay strings; the optimizer coerces them against its tunables.
func historyFromTrials(trials []models.Trial, target string) ([]map[string]any, []*float64, []models.Status) {
	sort.Slice(trials, func(i, j int) bool { return trials[i].TrialID < trials[j].TrialID })

	var (
		configs  []map[string]any
		scores   []*float64
		statuses []models.Status
	)
	for i := range trials {
		tr := &trials[i]
		if !tr.Status.IsCompleted() {
			continue
		}
		cfg := make(map[string]any, len(tr.Config))
		for k, v := range tr.Config {
			cfg[k] = v
		}
		var score *float64
		if v, ok := tr.Score(target); ok && tr.Status.IsSucceeded() {
			score = &v
		}
		configs = append(configs, cfg)
		scores = append(scores, score)
		statuses = append(statuses, tr.Status)
	}
	return configs, scores, statuses
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
