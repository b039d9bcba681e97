package optimizer

import "github.com/prometheus/client_golang/prometheus"

var (
	// Total number of configurations suggested, by backend
	SuggestionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mlos_optimizer_suggestions_total",
		Help: "Total number of configurations suggested by the optimizer",
	}, []string{"optimizer"})

	// Total number of trial registrations, by backend and trial status
	RegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mlos_optimizer_registrations_total",
		Help: "Total number of trial results registered with the optimizer",
	}, []string{"optimizer", "status"})

	// Total number of duplicate registrations that were skipped
	DuplicateRegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mlos_optimizer_duplicate_registrations_total",
		Help: "Total number of duplicate registrations reported as warnings",
	}, []string{"optimizer"})

	// Best score seen so far in the user's direction, by target metric
	BestScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mlos_optimizer_best_score",
		Help: "Best score registered so far for the optimization target",
	}, []string{"optimizer", "target"})
)

func init() {
	prometheus.MustRegister(
		SuggestionsTotal,
		RegistrationsTotal,
		DuplicateRegistrationsTotal,
		BestScore,
	)
}
