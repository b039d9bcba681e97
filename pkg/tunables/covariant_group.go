package tunables

import (
	"fmt"
	"sort"
	"strings"
)

// CovariantGroup is a named set of tunables that are always changed together
// and share a single cost of change. The group owns the dirty flag used to
// decide which parts of an environment have to be re-provisioned.
type CovariantGroup struct {
	name      string
	cost      float64
	tunables  map[string]*Tunable
	isUpdated bool
}

// NewCovariantGroup builds a group from a set of tunables. Tunable names must
// be unique within the group.
func NewCovariantGroup(name string, cost float64, tunables ...*Tunable) (*CovariantGroup, error) {
	if name == "" {
		return nil, &ValidationError{Reason: "covariant group name cannot be empty"}
	}
	if cost < 0 {
		return nil, &ValidationError{Name: name, Reason: fmt.Sprintf("cost must be >= 0, got %g", cost)}
	}
	g := &CovariantGroup{
		name:     name,
		cost:     cost,
		tunables: make(map[string]*Tunable, len(tunables)),
	}
	for _, t := range tunables {
		if t == nil {
			return nil, &ValidationError{Name: name, Reason: "nil tunable"}
		}
		if _, dup := g.tunables[t.name]; dup {
			return nil, &ValidationError{Name: t.name, Reason: "duplicate tunable in group " + name, Err: ErrDuplicateTunable}
		}
		g.tunables[t.name] = t
	}
	return g, nil
}

func (g *CovariantGroup) Name() string  { return g.name }
func (g *CovariantGroup) Cost() float64 { return g.cost }
func (g *CovariantGroup) Len() int      { return len(g.tunables) }

// IsUpdated reports whether any member was assigned since the last ResetUpdated.
func (g *CovariantGroup) IsUpdated() bool { return g.isUpdated }

// ResetUpdated clears the dirty flag without touching the values.
func (g *CovariantGroup) ResetUpdated() { g.isUpdated = false }

// GetTunable returns the member tunable with the given name.
func (g *CovariantGroup) GetTunable(name string) (*Tunable, error) {
	t, ok := g.tunables[name]
	if !ok {
		return nil, unknownTunable(name)
	}
	return t, nil
}

// Get returns the current value of a member tunable.
func (g *CovariantGroup) Get(name string) (any, error) {
	t, err := g.GetTunable(name)
	if err != nil {
		return nil, err
	}
	return t.Value(), nil
}

// Set assigns a member tunable and marks the group as updated, even when the
// new value is equal to the old one.
func (g *CovariantGroup) Set(name string, v any) error {
	t, err := g.GetTunable(name)
	if err != nil {
		return err
	}
	if err := t.Set(v); err != nil {
		return err
	}
	g.isUpdated = true
	return nil
}

// Values returns the flat name -> current value mapping of the members.
func (g *CovariantGroup) Values() map[string]any {
	values := make(map[string]any, len(g.tunables))
	for name, t := range g.tunables {
		values[name] = t.value
	}
	return values
}

// RestoreDefaults resets every member to its default value. Restoring counts
// as an assignment, so the group is marked as updated.
func (g *CovariantGroup) RestoreDefaults() {
	for _, t := range g.tunables {
		t.value = t.defaultValue
	}
	g.isUpdated = true
}

// IsDefaults reports whether every member is at its default value.
func (g *CovariantGroup) IsDefaults() bool {
	for _, t := range g.tunables {
		if !t.IsDefault() {
			return false
		}
	}
	return true
}

// EqualsDefaults compares the group structure: name, cost, member names,
// domains and defaults. Current values and the dirty flag are ignored.
func (g *CovariantGroup) EqualsDefaults(other *CovariantGroup) bool {
	if g == other {
		return true
	}
	if g == nil || other == nil {
		return false
	}
	if g.name != other.name || g.cost != other.cost || len(g.tunables) != len(other.tunables) {
		return false
	}
	for name, t := range g.tunables {
		o, ok := other.tunables[name]
		if !ok || !t.EqualsDefaults(o) {
			return false
		}
	}
	return true
}

// Equal is EqualsDefaults plus current values and the dirty flag.
func (g *CovariantGroup) Equal(other *CovariantGroup) bool {
	if !g.EqualsDefaults(other) || g.isUpdated != other.isUpdated {
		return false
	}
	for name, t := range g.tunables {
		if t.value != other.tunables[name].value {
			return false
		}
	}
	return true
}

// Copy returns a deep copy with private tunables and the same dirty flag.
func (g *CovariantGroup) Copy() *CovariantGroup {
	c := &CovariantGroup{
		name:      g.name,
		cost:      g.cost,
		tunables:  make(map[string]*Tunable, len(g.tunables)),
		isUpdated: g.isUpdated,
	}
	for name, t := range g.tunables {
		c.tunables[name] = t.copy()
	}
	return c
}

// Tunables returns the members sorted by name.
func (g *CovariantGroup) Tunables() []*Tunable {
	out := make([]*Tunable, 0, len(g.tunables))
	for _, t := range g.tunables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (g *CovariantGroup) String() string {
	parts := make([]string, 0, len(g.tunables))
	for _, t := range g.Tunables() {
		parts = append(parts, t.String())
	}
	return fmt.Sprintf("%s(cost=%g, updated=%t){%s}", g.name, g.cost, g.isUpdated, strings.Join(parts, ", "))
}
