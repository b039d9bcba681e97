package optimizer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kkanellis/MLOS/pkg/config"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// Optimizer is the contract between the trial loop and an optimization
// backend. Scores passed in and reported back are in the user's direction;
// normalization to minimization happens once, inside Register.
type Optimizer interface {
	// Suggest returns a fresh copy of the tunables with the next proposal
	// assigned. The first suggestion is the defaults when use_defaults is set.
	Suggest() (*tunables.Groups, error)
	// Register records a trial outcome and returns the normalized score
	// (nil unless the trial succeeded).
	Register(t *tunables.Groups, status models.Status, score *float64) (*float64, error)
	// BulkRegister warm-starts the optimizer from past trials. It returns
	// false when none of the rows was eligible.
	BulkRegister(configs []map[string]any, scores []*float64, statuses []models.Status) (bool, error)
	// BestObservation returns the best score and configuration so far.
	BestObservation() (float64, *tunables.Groups, bool)
	NotConverged() bool
	// ConvergenceReason explains why NotConverged turned false.
	ConvergenceReason() string
	Iteration() int
	Target() string
	Direction() Direction
	Name() string
}

// Adapter implements Optimizer on top of a Backend. It owns iteration
// bookkeeping, score normalization, duplicate detection and convergence.
type Adapter struct {
	mu            sync.Mutex
	backend       Backend
	base          *tunables.Groups
	objective     Objective
	maxIterations int
	useDefaults   bool
	iteration     int
	seen          map[string][]float64
	history       []Step
	best          *bestObservation
	convergence   ConvergenceStrategy
	converged     bool
	reason        string

	// OnWarning receives non-fatal problems such as duplicate registrations.
	// Defaults to logging at warn level.
	OnWarning func(error)
}

type bestObservation struct {
	score  float64 // normalized
	config *tunables.Groups
}

// NewAdapter wraps a backend. base is copied; later changes to it are not seen.
func NewAdapter(backend Backend, base *tunables.Groups, cfg config.OptimizerConfig) (*Adapter, error) {
	if backend == nil {
		return nil, fmt.Errorf("optimizer backend is required")
	}
	if base == nil {
		return nil, fmt.Errorf("tunables are required")
	}
	direction, err := ParseDirection(cfg.Direction)
	if err != nil {
		return nil, err
	}
	strategy, err := NewConvergenceStrategy(cfg.Convergence)
	if err != nil {
		return nil, err
	}
	target := cfg.Target
	if target == "" {
		target = "score"
	}
	return &Adapter{
		backend:       backend,
		base:          base.Copy(),
		objective:     Objective{Target: target, Direction: direction},
		maxIterations: cfg.MaxIterations,
		useDefaults:   cfg.StartWithDefaults(),
		seen:          make(map[string][]float64),
		convergence:   strategy,
		OnWarning: func(err error) {
			logger.Warn("optimizer warning", "optimizer", backend.Name(), "error", err)
		},
	}, nil
}

func (o *Adapter) Name() string         { return o.backend.Name() }
func (o *Adapter) Target() string       { return o.objective.Target }
func (o *Adapter) Direction() Direction { return o.objective.Direction }

// Objective returns the target metric and direction.
func (o *Adapter) Objective() Objective { return o.objective }

// Iteration returns the number of registered trials.
func (o *Adapter) Iteration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iteration
}

// NotConverged reports whether the optimizer wants more trials.
func (o *Adapter) NotConverged() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iteration < o.maxIterations && !o.converged
}

// ConvergenceReason explains why the optimizer stopped, if it has.
func (o *Adapter) ConvergenceReason() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.converged {
		return o.reason
	}
	if o.iteration >= o.maxIterations {
		return "max iterations reached"
	}
	return ""
}

// History returns the successful registrations in order. Failed trials
// count as iterations but have no score, so they never appear here.
func (o *Adapter) History() []Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Step(nil), o.history...)
}

func (o *Adapter) Suggest() (*tunables.Groups, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	useDefaults := o.useDefaults
	if useDefaults {
		logger.Info("using default values for the first trial", "optimizer", o.backend.Name())
	}
	values, err := o.backend.Suggest(useDefaults)
	o.useDefaults = false
	if err != nil {
		return nil, err
	}

	t := o.base.Copy()
	if err := t.Assign(values); err != nil {
		return nil, fmt.Errorf("backend %s suggested an invalid configuration: %w", o.backend.Name(), err)
	}
	SuggestionsTotal.WithLabelValues(o.backend.Name()).Inc()
	return t, nil
}

func (o *Adapter) Register(t *tunables.Groups, status models.Status, score *float64) (*float64, error) {
	if t == nil {
		return nil, &tunables.ValidationError{Name: "tunables", Reason: "cannot register nil tunables"}
	}
	if status.IsSucceeded() && score == nil {
		return nil, &tunables.ValidationError{Name: "score", Reason: "a succeeded trial requires a score"}
	}
	values, err := o.project(t.Values(), false)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.iteration++
	RegistrationsTotal.WithLabelValues(o.backend.Name(), status.String()).Inc()
	logger.Debug("register trial", "optimizer", o.backend.Name(), "iteration", o.iteration, "status", status.String())
	if !status.IsSucceeded() {
		return nil, nil
	}

	norm := *score * o.objective.Direction.Sign()
	obs := Observation{Config: values, Score: norm, Hash: hashValues(values)}
	if o.isDuplicate(obs) {
		o.warn(&DuplicateRegistrationWarning{ConfigHash: obs.Hash, Score: *score})
		return &norm, nil
	}
	o.record([]Observation{obs})
	return &norm, nil
}

func (o *Adapter) BulkRegister(configs []map[string]any, scores []*float64, statuses []models.Status) (bool, error) {
	if len(configs) != len(scores) {
		return false, &tunables.ValidationError{
			Name:   "scores",
			Reason: fmt.Sprintf("got %d configs and %d scores", len(configs), len(scores)),
		}
	}
	if statuses != nil && len(statuses) != len(configs) {
		return false, &tunables.ValidationError{
			Name:   "statuses",
			Reason: fmt.Sprintf("got %d configs and %d statuses", len(configs), len(statuses)),
		}
	}

	// Validate every eligible row before touching any state.
	var batch []Observation
	for i, raw := range configs {
		if statuses != nil && !statuses[i].IsSucceeded() {
			continue
		}
		if scores[i] == nil {
			continue
		}
		values, err := o.project(raw, true)
		if err != nil {
			return false, fmt.Errorf("row %d: %w", i, err)
		}
		batch = append(batch, Observation{
			Config: values,
			Score:  *scores[i] * o.objective.Direction.Sign(),
			Hash:   hashValues(values),
		})
	}
	if len(batch) == 0 {
		return false, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	logger.Info("warm-starting optimizer", "optimizer", o.backend.Name(), "rows", len(configs), "eligible", len(batch))
	o.useDefaults = false
	fresh := make([]Observation, 0, len(batch))
	for _, obs := range batch {
		o.iteration++
		RegistrationsTotal.WithLabelValues(o.backend.Name(), models.StatusSucceeded.String()).Inc()
		if o.isDuplicate(obs) {
			o.warn(&DuplicateRegistrationWarning{ConfigHash: obs.Hash, Score: obs.Score * o.objective.Direction.Sign()})
			continue
		}
		o.seen[obs.Hash] = append(o.seen[obs.Hash], obs.Score)
		fresh = append(fresh, obs)
	}
	o.record(fresh)
	return true, nil
}

func (o *Adapter) BestObservation() (float64, *tunables.Groups, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.best == nil {
		return 0, nil, false
	}
	return o.best.score * o.objective.Direction.Sign(), o.best.config.Copy(), true
}

// project maps a configuration onto the base tunables: every base tunable is
// taken from values (or its default when missing), unknown keys are ignored.
// With fromText, values may be strings, as loaded from storage.
func (o *Adapter) project(values map[string]any, fromText bool) (map[string]any, error) {
	out := make(map[string]any, o.base.Len())
	for _, e := range o.base.Tunables() {
		t := e.Tunable
		raw, ok := values[t.Name()]
		if !ok {
			if fromText {
				out[t.Name()] = t.Default()
				continue
			}
			return nil, &tunables.LookupError{Kind: "tunable", Name: t.Name()}
		}
		v, err := t.Validate(raw)
		if err != nil {
			return nil, err
		}
		out[t.Name()] = v
	}
	return out, nil
}

// isDuplicate reports whether the same config was already registered with the
// same score. Caller holds o.mu.
func (o *Adapter) isDuplicate(obs Observation) bool {
	return slices.Contains(o.seen[obs.Hash], obs.Score)
}

// record feeds observations to the backend and updates best, history and
// convergence. Caller holds o.mu.
func (o *Adapter) record(batch []Observation) {
	if len(batch) == 0 {
		return
	}
	for _, obs := range batch {
		if !o.isDuplicate(obs) {
			o.seen[obs.Hash] = append(o.seen[obs.Hash], obs.Score)
		}
		o.history = append(o.history, Step{Iteration: o.iteration, Score: obs.Score, ConfigHash: obs.Hash})
		if o.best == nil || obs.Score < o.best.score {
			cfg := o.base.Copy()
			if err := cfg.Assign(obs.Config); err == nil {
				o.best = &bestObservation{score: obs.Score, config: cfg}
				BestScore.WithLabelValues(o.backend.Name(), o.objective.Target).Set(obs.Score * o.objective.Direction.Sign())
			}
		}
	}
	o.backend.Register(batch)

	if o.convergence != nil && !o.converged {
		if converged, reason := o.convergence.CheckConvergence(o.history); converged {
			o.converged = true
			o.reason = reason
			logger.Info("optimizer converged", "optimizer", o.backend.Name(), "reason", reason, "iteration", o.iteration)
		}
	}
}

func (o *Adapter) warn(err error) {
	DuplicateRegistrationsTotal.WithLabelValues(o.backend.Name()).Inc()
	if o.OnWarning != nil {
		o.OnWarning(err)
	}
}
