package optimizer

import (
	"github.com/kkanellis/MLOS/pkg/tunables"
)

// GridBackend walks the cartesian product of per-tunable grids in order,
// skipping points that were already evaluated or suggested.
type GridBackend struct {
	history
	names  []string
	axes   [][]any
	total  int
	cursor int
}

// NewGridBackend creates a grid search backend with points values per
// numeric tunable.
func NewGridBackend(space *tunables.Groups, points int) *GridBackend {
	if points <= 0 {
		points = 5
	}
	b := &GridBackend{history: newHistory(space), total: 1}
	for _, e := range space.Tunables() {
		axis := gridValues(e.Tunable, points)
		b.names = append(b.names, e.Tunable.Name())
		b.axes = append(b.axes, axis)
		if b.total > maxGridSize/len(axis) {
			b.total = maxGridSize
		} else {
			b.total *= len(axis)
		}
	}
	return b
}

// maxGridSize caps the number of enumerated grid points.
const maxGridSize = 1 << 30

func (b *GridBackend) Name() string {
	return "grid"
}

// Size returns the number of points in the grid.
func (b *GridBackend) Size() int {
	return b.total
}

func (b *GridBackend) Suggest(useDefaults bool) (map[string]any, error) {
	if useDefaults {
		if values, ok := b.defaults(); ok {
			return b.markPending(values), nil
		}
	}
	for b.cursor < b.total {
		values := b.point(b.cursor)
		b.cursor++
		if b.fresh(hashValues(values)) {
			return b.markPending(values), nil
		}
	}
	return nil, &BackendExhaustionError{Backend: b.Name()}
}

// point decodes a grid index as a mixed radix number, the last tunable
// varying fastest.
func (b *GridBackend) point(idx int) map[string]any {
	values := make(map[string]any, len(b.names))
	for i := len(b.axes) - 1; i >= 0; i-- {
		axis := b.axes[i]
		values[b.names[i]] = axis[idx%len(axis)]
		idx /= len(axis)
	}
	return values
}
