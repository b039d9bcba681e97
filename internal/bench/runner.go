package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kkanellis/MLOS/internal/environment"
	"github.com/kkanellis/MLOS/internal/optimizer"
	"github.com/kkanellis/MLOS/internal/storage"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/models"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// Runner drives the trial loop of one experiment: suggest, store, set up,
// run, record, register, until the optimizer is done.
type Runner struct {
	env      environment.Environment
	opt      optimizer.Optimizer
	exp      storage.Experiment
	repeat   int
	clock    utils.Clock
	observer func(TrialEvent)

	mu     sync.RWMutex
	trials []*TrialEvent
	counts models.StatusCounter
}

// TrialEvent describes a finished trial.
type TrialEvent struct {
	TrialID   int64
	Repeat    int
	Iteration int
	Status    models.Status
	// Score is in the user's direction; nil unless the trial succeeded.
	Score      *float64
	ConfigHash string
	Elapsed    time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithRepeatCount runs every suggestion n times.
func WithRepeatCount(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.repeat = n
		}
	}
}

// WithClock sets the clock used for trial timestamps.
func WithClock(clock utils.Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithTrialObserver registers a callback invoked after every trial.
func WithTrialObserver(fn func(TrialEvent)) Option {
	return func(r *Runner) {
		r.observer = fn
	}
}

// NewRunner creates a trial loop over env, opt and exp.
func NewRunner(env environment.Environment, opt optimizer.Optimizer, exp storage.Experiment, opts ...Option) (*Runner, error) {
	if env == nil || opt == nil || exp == nil {
		return nil, fmt.Errorf("environment, optimizer and experiment are required")
	}
	r := &Runner{env: env, opt: opt, exp: exp, repeat: 1, clock: utils.SystemClock{}}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Run warm-starts the optimizer from the stored history of the experiment
// and runs trials until the optimizer converges, the search space is
// exhausted or ctx is canceled. The environment is always torn down.
func (r *Runner) Run(ctx context.Context) (result *Result, err error) {
	start := r.clock.Now()
	warm, err := r.warmStart(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if terr := r.env.Teardown(context.WithoutCancel(ctx)); terr != nil {
			logger.Error("teardown failed", "environment", r.env.Name(), "error", terr)
			err = errors.Join(err, terr)
		}
	}()

	reason := ""
	for r.opt.NotConverged() {
		if ctx.Err() != nil {
			reason = "canceled"
			break
		}
		suggestion, err := r.opt.Suggest()
		var exhausted *optimizer.BackendExhaustionError
		if errors.As(err, &exhausted) {
			logger.Info("search space exhausted", "optimizer", r.opt.Name(), "error", err)
			reason = "search space exhausted"
			break
		}
		if err != nil {
			return nil, fmt.Errorf("suggest failed: %w", err)
		}

		for i := 1; i <= r.repeat; i++ {
			if _, err := r.runTrial(ctx, suggestion, i); err != nil {
				return nil, err
			}
		}
	}
	if reason == "" {
		reason = r.opt.ConvergenceReason()
	}

	result = r.summarize(reason, warm, r.clock.Now().Sub(start))
	logger.Info("experiment finished",
		"experiment_id", r.exp.ID(),
		"trials", result.TotalTrials,
		"best_score", result.BestScore,
		"reason", reason)
	return result, nil
}

// warmStart feeds the completed trials of a resumed experiment to the
// optimizer. It returns the number of history rows.
func (r *Runner) warmStart(ctx context.Context) (int, error) {
	configs, scores, statuses, err := r.exp.LoadHistory(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load history: %w", err)
	}
	if len(configs) == 0 {
		return 0, nil
	}
	ok, err := r.opt.BulkRegister(configs, scores, statuses)
	if err != nil {
		return 0, fmt.Errorf("warm start failed: %w", err)
	}
	logger.Info("warm start", "experiment_id", r.exp.ID(), "rows", len(configs), "registered", ok)
	return len(configs), nil
}

// runTrial runs one repetition of a suggestion and registers its outcome.
// Storage and optimizer errors are fatal; benchmark failures are recorded as
// failed trials.
func (r *Runner) runTrial(ctx context.Context, suggestion *tunables.Groups, repeat int) (*TrialEvent, error) {
	begin := r.clock.Now()
	// Storage writes outlive cancellation so the trial is closed properly.
	store := context.WithoutCancel(ctx)

	tr, err := r.exp.NewTrial(store, suggestion, r.trialParams(suggestion, repeat))
	if err != nil {
		return nil, fmt.Errorf("failed to create trial: %w", err)
	}
	log := logger.With("experiment_id", r.exp.ID(), "trial_id", tr.TrialID, "repeat", repeat)
	if err := r.exp.UpdateTrial(store, tr.TrialID, models.StatusRunning, r.clock.Now(), nil); err != nil {
		return nil, err
	}

	status, results := r.benchmark(ctx, suggestion, log)
	var score *float64
	if status.IsSucceeded() {
		objective := optimizer.Objective{Target: r.opt.Target(), Direction: r.opt.Direction()}
		v, err := objective.Evaluate(results)
		if err != nil {
			log.Warn("trial results rejected", "error", err)
			status = models.StatusFailed
		} else {
			score = &v
		}
	}

	if err := r.exp.UpdateTrial(store, tr.TrialID, status, r.clock.Now(), results); err != nil {
		return nil, err
	}
	if _, err := r.opt.Register(suggestion, status, score); err != nil {
		return nil, fmt.Errorf("register trial %d: %w", tr.TrialID, err)
	}

	event := &TrialEvent{
		TrialID:    tr.TrialID,
		Repeat:     repeat,
		Iteration:  r.opt.Iteration(),
		Status:     status,
		Score:      score,
		ConfigHash: tr.ConfigHash,
		Elapsed:    r.clock.Now().Sub(begin),
	}
	r.mu.Lock()
	r.trials = append(r.trials, event)
	r.mu.Unlock()
	r.counts.Add(status)

	log.Info("trial finished", "status", status.String(), "iteration", event.Iteration)
	if r.observer != nil {
		r.observer(*event)
	}
	return event, nil
}

// benchmark sets the environment up and runs it. Anything short of a
// completed run is reported as a failure, or a cancellation if ctx is done.
func (r *Runner) benchmark(ctx context.Context, suggestion *tunables.Groups, log *slog.Logger) (models.Status, map[string]float64) {
	ready, err := r.env.Setup(ctx, suggestion)
	if err != nil || !ready {
		log.Warn("environment setup failed", "environment", r.env.Name(), "error", err)
		return r.failure(ctx), nil
	}
	status, results, err := r.env.Run(ctx)
	if err != nil {
		log.Warn("benchmark failed", "environment", r.env.Name(), "error", err)
		return r.failure(ctx), nil
	}
	if !status.IsCompleted() {
		log.Warn("benchmark did not complete", "environment", r.env.Name(), "status", status.String())
		return r.failure(ctx), nil
	}
	if !status.IsSucceeded() {
		return status, nil
	}
	return status, results
}

func (r *Runner) failure(ctx context.Context) models.Status {
	if ctx.Err() != nil {
		return models.StatusCanceled
	}
	return models.StatusFailed
}

// trialParams returns the environment params that are not tunables, plus
// the repetition number.
func (r *Runner) trialParams(suggestion *tunables.Groups, repeat int) map[string]any {
	params := map[string]any{"repeat_i": repeat}
	for k, v := range r.env.Params() {
		if !suggestion.Contains(k) {
			params[k] = v
		}
	}
	return params
}

// Trials returns the trials run so far, oldest first.
func (r *Runner) Trials() []TrialEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TrialEvent, len(r.trials))
	for i, t := range r.trials {
		out[i] = *t
	}
	return out
}
