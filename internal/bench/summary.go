package bench

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Result summarizes a finished experiment.
type Result struct {
	ExperimentID string
	// BestScore and BestConfig are in the user's direction. HasBest is false
	// when no trial succeeded.
	BestScore         float64
	BestConfig        map[string]any
	HasBest           bool
	TotalTrials       int
	StatusCounts      map[string]int
	MeanScore         float64
	StdDevScore       float64
	Iterations        int
	WarmStartRows     int
	ConvergenceReason string
	Duration          time.Duration
}

func (r *Runner) summarize(reason string, warm int, elapsed time.Duration) *Result {
	res := &Result{
		ExperimentID:      r.exp.ID(),
		StatusCounts:      r.counts.Snapshot(),
		Iterations:        r.opt.Iteration(),
		WarmStartRows:     warm,
		ConvergenceReason: reason,
		Duration:          elapsed,
	}
	if score, cfg, ok := r.opt.BestObservation(); ok {
		res.BestScore = score
		res.BestConfig = cfg.Values()
		res.HasBest = true
	}

	var scores []float64
	for _, t := range r.Trials() {
		res.TotalTrials++
		if t.Score != nil {
			scores = append(scores, *t.Score)
		}
	}
	res.MeanScore, res.StdDevScore = ScoreStats(scores)
	return res
}

// ScoreStats returns the mean and sample standard deviation of scores.
// Both are 0 for no scores; the deviation is 0 for a single score.
func ScoreStats(scores []float64) (mean, stddev float64) {
	switch len(scores) {
	case 0:
		return 0, 0
	case 1:
		return scores[0], 0
	}
	return stat.MeanStdDev(scores, nil)
}
