package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kkanellis/MLOS/internal/bench"
	"github.com/kkanellis/MLOS/internal/environment"
	"github.com/kkanellis/MLOS/internal/optimizer"
	"github.com/kkanellis/MLOS/internal/storage"
	"github.com/kkanellis/MLOS/pkg/logger"
	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the optimization loop of an experiment",
	Long: `Run suggests configurations, benchmarks them in the configured environment
and stores every trial. An existing experiment with the same id is resumed.`,
	RunE: runExperiment,
}

func runExperiment(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := newLauncher()
	if err != nil {
		return err
	}
	cfg := l.cfg

	factory := &environment.Factory{Registry: l.registry, Globals: cfg.Globals}
	env, err := factory.Build(cfg.Environment)
	if err != nil {
		return err
	}
	opt, err := optimizer.New(cfg.Optimizer, env.Tunables())
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	exp, err := store.Experiment(ctx, storage.ExperimentSpec{
		ID:          cfg.ExperimentID,
		Description: cfg.Description,
		RootEnv:     env.Name(),
		Target:      opt.Target(),
		Direction:   string(opt.Direction()),
	})
	if err != nil {
		return err
	}

	runner, err := bench.NewRunner(env, opt, exp,
		bench.WithRepeatCount(cfg.ConfigRepeatCount),
		bench.WithTrialObserver(func(e bench.TrialEvent) {
			score := "-"
			if e.Score != nil {
				score = fmt.Sprintf("%g", *e.Score)
			}
			logger.Info("progress",
				"trial_id", e.TrialID,
				"iteration", e.Iteration,
				"status", e.Status.String(),
				"score", score,
				"elapsed", utils.FormatDuration(e.Elapsed))
		}))
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res *bench.Result) {
	fmt.Fprintf(w, "experiment:   %s\n", res.ExperimentID)
	fmt.Fprintf(w, "trials:       %d (iterations %d, warm start %d)\n", res.TotalTrials, res.Iterations, res.WarmStartRows)

	statuses := make([]string, 0, len(res.StatusCounts))
	for s := range res.StatusCounts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-10s  %d\n", s, res.StatusCounts[s])
	}
	fmt.Fprintf(w, "stop reason:  %s\n", res.ConvergenceReason)
	fmt.Fprintf(w, "duration:     %s\n", utils.FormatDuration(res.Duration))
	if !res.HasBest {
		fmt.Fprintln(w, "best:         none (no successful trial)")
		return
	}
	fmt.Fprintf(w, "score:        mean %g, stddev %g\n", res.MeanScore, res.StdDevScore)
	fmt.Fprintf(w, "best score:   %g\n", res.BestScore)
	names := make([]string, 0, len(res.BestConfig))
	for name := range res.BestConfig {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, tunables.FormatValue(res.BestConfig[name]))
	}
}
