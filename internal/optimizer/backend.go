package optimizer

import (
	"math"
	"sort"

	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// Observation is a configuration with its normalized score (lower is better).
type Observation struct {
	Config map[string]any
	Score  float64
	Hash   string
}

// Backend proposes configurations and learns from observations. Scores seen
// by a backend are always normalized to minimization.
type Backend interface {
	Name() string
	// Suggest proposes values for every tunable. With useDefaults the
	// default configuration is proposed if it has not been seen.
	Suggest(useDefaults bool) (map[string]any, error)
	Register(obs []Observation)
	Best() (Observation, bool)
}

// history is the evaluated-configuration memory shared by all backends.
type history struct {
	space        *tunables.Groups
	observations []Observation
	seen         map[string]bool
	pending      map[string]bool
	best         int
}

func newHistory(space *tunables.Groups) history {
	return history{
		space:   space,
		seen:    make(map[string]bool),
		pending: make(map[string]bool),
		best:    -1,
	}
}

func (h *history) Register(obs []Observation) {
	for _, o := range obs {
		if o.Hash == "" {
			o.Hash = hashValues(o.Config)
		}
		h.seen[o.Hash] = true
		delete(h.pending, o.Hash)
		h.observations = append(h.observations, o)
		if h.best < 0 || o.Score < h.observations[h.best].Score {
			h.best = len(h.observations) - 1
		}
	}
}

func (h *history) Best() (Observation, bool) {
	if h.best < 0 {
		return Observation{}, false
	}
	return h.observations[h.best], true
}

// fresh reports whether a configuration has been neither evaluated nor
// suggested before.
func (h *history) fresh(hash string) bool {
	return !h.seen[hash] && !h.pending[hash]
}

func (h *history) markPending(values map[string]any) map[string]any {
	h.pending[hashValues(values)] = true
	return values
}

// defaults returns the default configuration if it is still fresh.
func (h *history) defaults() (map[string]any, bool) {
	values := make(map[string]any, h.space.Len())
	for _, e := range h.space.Tunables() {
		values[e.Tunable.Name()] = e.Tunable.Default()
	}
	if !h.fresh(hashValues(values)) {
		return nil, false
	}
	return values, true
}

// hashValues hashes a flat configuration the same way Groups.ConfigHash does.
func hashValues(values map[string]any) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	records := make([]tunables.ParamRecord, len(names))
	for i, name := range names {
		records[i] = tunables.ParamRecord{Name: name, Value: tunables.FormatValue(values[name])}
	}
	return tunables.HashRecords(records)
}

// sampleValue draws a uniformly distributed value from a tunable domain.
// Numeric special values are drawn with probability specialProb.
func sampleValue(rng *utils.RandSource, t *tunables.Tunable, specialProb float64) any {
	switch d := t.Domain().(type) {
	case tunables.IntDomain:
		if len(d.Special) > 0 && rng.BernoulliBool(specialProb) {
			return d.Special[rng.Intn(len(d.Special))]
		}
		return rng.Int64Range(d.Min, d.Max)
	case tunables.FloatDomain:
		if len(d.Special) > 0 && rng.BernoulliBool(specialProb) {
			return d.Special[rng.Intn(len(d.Special))]
		}
		return rng.UniformFloat64(d.Min, d.Max)
	case tunables.CategoricalDomain:
		return d.Values[rng.Intn(len(d.Values))]
	}
	return t.Default()
}

func sampleConfig(rng *utils.RandSource, space *tunables.Groups, specialProb float64) map[string]any {
	values := make(map[string]any, space.Len())
	for _, e := range space.Tunables() {
		values[e.Tunable.Name()] = sampleValue(rng, e.Tunable, specialProb)
	}
	return values
}

// randomFresh samples up to attempts random configurations and returns the
// first one that has not been seen.
func randomFresh(rng *utils.RandSource, h *history, specialProb float64, attempts int) (map[string]any, bool) {
	for i := 0; i < attempts; i++ {
		values := sampleConfig(rng, h.space, specialProb)
		if h.fresh(hashValues(values)) {
			return values, true
		}
	}
	return nil, false
}

// gridValues returns the grid of one tunable: all categories, or n evenly
// spaced values over the range plus the specials.
func gridValues(t *tunables.Tunable, n int) []any {
	var out []any
	switch d := t.Domain().(type) {
	case tunables.CategoricalDomain:
		for _, v := range d.Values {
			out = append(out, v)
		}
	case tunables.IntDomain:
		seen := make(map[int64]bool)
		for _, s := range d.Special {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
		for _, f := range utils.Linspace(float64(d.Min), float64(d.Max), n) {
			v := int64(math.Round(f))
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	case tunables.FloatDomain:
		seen := make(map[float64]bool)
		for _, s := range d.Special {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
		for _, v := range utils.Linspace(d.Min, d.Max, n) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
