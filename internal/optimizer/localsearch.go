package optimizer

import (
	"math"

	"github.com/kkanellis/MLOS/pkg/tunables"
	"github.com/kkanellis/MLOS/pkg/utils"
)

// LocalSearchBackend is a hill climber. Each suggestion is derived from the
// best registered observation: its unseen neighbors are tried first, then
// random restarts.
type LocalSearchBackend struct {
	history
	rng          *utils.RandSource
	stepFraction float64
	specialProb  float64
	maxRetries   int
}

// NewLocalSearchBackend creates a hill climbing backend
func NewLocalSearchBackend(space *tunables.Groups, seed int64, stepFraction, specialProb float64, maxRetries int) *LocalSearchBackend {
	if stepFraction <= 0 {
		stepFraction = 0.1
	}
	if maxRetries <= 0 {
		maxRetries = 100
	}
	return &LocalSearchBackend{
		history:      newHistory(space),
		rng:          utils.NewRandSource(seed),
		stepFraction: stepFraction,
		specialProb:  specialProb,
		maxRetries:   maxRetries,
	}
}

func (b *LocalSearchBackend) Name() string {
	return "local_search"
}

func (b *LocalSearchBackend) Suggest(useDefaults bool) (map[string]any, error) {
	if useDefaults {
		if values, ok := b.defaults(); ok {
			return b.markPending(values), nil
		}
	}
	if best, ok := b.Best(); ok {
		neighbors := b.neighbors(best.Config)
		// Visit neighbors in random order so ties do not always favor the
		// first tunable.
		for i := len(neighbors) - 1; i > 0; i-- {
			j := b.rng.Intn(i + 1)
			neighbors[i], neighbors[j] = neighbors[j], neighbors[i]
		}
		for _, n := range neighbors {
			if b.fresh(hashValues(n)) {
				return b.markPending(n), nil
			}
		}
	}
	values, ok := randomFresh(b.rng, &b.history, b.specialProb, b.maxRetries)
	if !ok {
		return nil, &BackendExhaustionError{Backend: b.Name(), Attempts: b.maxRetries}
	}
	return b.markPending(values), nil
}

// neighbors returns every configuration that differs from center in exactly
// one tunable: one step up or down for numeric tunables, any other value for
// categoricals, and the special values.
func (b *LocalSearchBackend) neighbors(center map[string]any) []map[string]any {
	var out []map[string]any
	with := func(name string, v any) {
		n := make(map[string]any, len(center))
		for k, cv := range center {
			n[k] = cv
		}
		n[name] = v
		out = append(out, n)
	}

	for _, e := range b.space.Tunables() {
		t := e.Tunable
		cur := center[t.Name()]
		for _, v := range b.moves(t, cur) {
			if v != cur {
				with(t.Name(), v)
			}
		}
	}
	return out
}

func (b *LocalSearchBackend) moves(t *tunables.Tunable, cur any) []any {
	var out []any
	switch d := t.Domain().(type) {
	case tunables.CategoricalDomain:
		for _, v := range d.Values {
			out = append(out, v)
		}
	case tunables.IntDomain:
		step := int64(math.Max(1, math.Round(b.stepFraction*float64(d.Max-d.Min))))
		x, _ := cur.(int64)
		if x < d.Min || x > d.Max {
			// From a special value jump back into the range.
			out = append(out, d.Min, d.Max)
		} else {
			if x-step >= d.Min {
				out = append(out, x-step)
			} else if x != d.Min {
				out = append(out, d.Min)
			}
			if x+step <= d.Max {
				out = append(out, x+step)
			} else if x != d.Max {
				out = append(out, d.Max)
			}
		}
		for _, s := range d.Special {
			out = append(out, s)
		}
	case tunables.FloatDomain:
		step := b.stepFraction * (d.Max - d.Min)
		x, _ := cur.(float64)
		if x < d.Min || x > d.Max {
			out = append(out, d.Min, d.Max)
		} else if step > 0 {
			out = append(out, math.Max(d.Min, x-step), math.Min(d.Max, x+step))
		}
		for _, s := range d.Special {
			out = append(out, s)
		}
	}
	return out
}
