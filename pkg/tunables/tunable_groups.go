package tunables

import (
	"fmt"
	"sort"
	"strings"
)

// Groups is the registry of all covariant groups of an experiment together
// with a derived index from tunable name to the group that owns it.
//
// The index is only rebuilt by structural mutations (AddGroup, Merge). Value
// updates route through the owning group so the dirty flags stay correct.
// Groups is not safe for concurrent use; Copy before handing it off.
type Groups struct {
	groups map[string]*CovariantGroup
	order  []string
	index  map[string]*CovariantGroup
}

// TunableEntry pairs a tunable with the covariant group that owns it.
type TunableEntry struct {
	Tunable *Tunable
	Group   *CovariantGroup
}

// NewGroups returns an empty registry.
func NewGroups() *Groups {
	return &Groups{
		groups: make(map[string]*CovariantGroup),
		index:  make(map[string]*CovariantGroup),
	}
}

// AddGroup registers a covariant group. The group is held by reference. All
// collision checks run before the registry is modified.
func (tg *Groups) AddGroup(g *CovariantGroup) error {
	if g == nil {
		return &ValidationError{Reason: "nil covariant group"}
	}
	if _, dup := tg.groups[g.name]; dup {
		return &ValidationError{Name: g.name, Reason: "covariant group already registered", Err: ErrDuplicateGroup}
	}
	for name := range g.tunables {
		if owner, dup := tg.index[name]; dup {
			return &ValidationError{
				Name:   name,
				Reason: fmt.Sprintf("tunable already defined in group %q", owner.name),
				Err:    ErrDuplicateTunable,
			}
		}
	}
	tg.insert(g)
	return nil
}

func (tg *Groups) insert(g *CovariantGroup) {
	tg.groups[g.name] = g
	tg.order = append(tg.order, g.name)
	for name := range g.tunables {
		tg.index[name] = g
	}
}

// Merge adds the covariant groups of other that the receiver does not have
// (by reference) and checks that same-named groups are structurally identical.
// The receiver's current values and dirty flags are never overwritten. On
// error the receiver is left unchanged. Returns the receiver.
func (tg *Groups) Merge(other *Groups) (*Groups, error) {
	if other == nil {
		return tg, nil
	}
	var added []*CovariantGroup
	pending := make(map[string]string)
	for _, name := range other.order {
		g := other.groups[name]
		if mine, ok := tg.groups[name]; ok {
			if !mine.EqualsDefaults(g) {
				return nil, &IncompatibleGroupsError{Group: name}
			}
			continue
		}
		for tname := range g.tunables {
			if owner, dup := tg.index[tname]; dup {
				return nil, &ValidationError{
					Name:   tname,
					Reason: fmt.Sprintf("tunable already defined in group %q", owner.name),
					Err:    ErrDuplicateTunable,
				}
			}
			if owner, dup := pending[tname]; dup {
				return nil, &ValidationError{
					Name:   tname,
					Reason: fmt.Sprintf("tunable already defined in group %q", owner),
					Err:    ErrDuplicateTunable,
				}
			}
			pending[tname] = name
		}
		added = append(added, g)
	}
	for _, g := range added {
		tg.insert(g)
	}
	return tg, nil
}

// Subgroup returns a registry that shares (aliases) the named covariant groups
// of the receiver. Updates through either registry are visible in both.
func (tg *Groups) Subgroup(names ...string) (*Groups, error) {
	sub := NewGroups()
	for _, name := range names {
		g, ok := tg.groups[name]
		if !ok {
			return nil, unknownGroup(name)
		}
		if _, dup := sub.groups[name]; dup {
			continue
		}
		sub.insert(g)
	}
	return sub, nil
}

// Len returns the number of tunables across all groups.
func (tg *Groups) Len() int { return len(tg.index) }

// Contains reports whether a tunable with the given name is registered.
func (tg *Groups) Contains(name string) bool {
	_, ok := tg.index[name]
	return ok
}

// GroupNames returns the covariant group names in insertion order.
func (tg *Groups) GroupNames() []string {
	return append([]string(nil), tg.order...)
}

// Group returns a covariant group by name.
func (tg *Groups) Group(name string) (*CovariantGroup, error) {
	g, ok := tg.groups[name]
	if !ok {
		return nil, unknownGroup(name)
	}
	return g, nil
}

// GetTunable returns a tunable and the group that owns it.
func (tg *Groups) GetTunable(name string) (*Tunable, *CovariantGroup, error) {
	g, ok := tg.index[name]
	if !ok {
		return nil, nil, unknownTunable(name)
	}
	return g.tunables[name], g, nil
}

// Get returns the current value of a tunable.
func (tg *Groups) Get(name string) (any, error) {
	g, ok := tg.index[name]
	if !ok {
		return nil, unknownTunable(name)
	}
	return g.tunables[name].value, nil
}

// Set assigns a tunable through its owning group, marking that group updated.
func (tg *Groups) Set(name string, v any) error {
	g, ok := tg.index[name]
	if !ok {
		return unknownTunable(name)
	}
	return g.Set(name, v)
}

// Tunables returns every (tunable, group) pair sorted by tunable name.
func (tg *Groups) Tunables() []TunableEntry {
	out := make([]TunableEntry, 0, len(tg.index))
	for name, g := range tg.index {
		out = append(out, TunableEntry{Tunable: g.tunables[name], Group: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tunable.name < out[j].Tunable.name })
	return out
}

func (tg *Groups) selectGroups(names []string) ([]*CovariantGroup, error) {
	if len(names) == 0 {
		out := make([]*CovariantGroup, 0, len(tg.order))
		for _, name := range tg.order {
			out = append(out, tg.groups[name])
		}
		return out, nil
	}
	out := make([]*CovariantGroup, 0, len(names))
	for _, name := range names {
		g, ok := tg.groups[name]
		if !ok {
			return nil, unknownGroup(name)
		}
		out = append(out, g)
	}
	return out, nil
}

// ParamValues returns the flat name -> value mapping of the selected groups,
// or of all groups when no names are given.
func (tg *Groups) ParamValues(groupNames ...string) (map[string]any, error) {
	groups, err := tg.selectGroups(groupNames)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	for _, g := range groups {
		for name, t := range g.tunables {
			values[name] = t.value
		}
	}
	return values, nil
}

// Values is ParamValues over all groups.
func (tg *Groups) Values() map[string]any {
	values, _ := tg.ParamValues()
	return values
}

// IsUpdated reports whether any of the selected groups (all by default) has
// been assigned since the last Reset.
func (tg *Groups) IsUpdated(groupNames ...string) (bool, error) {
	groups, err := tg.selectGroups(groupNames)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.isUpdated {
			return true, nil
		}
	}
	return false, nil
}

// IsDefaults reports whether every tunable is at its default value.
func (tg *Groups) IsDefaults() bool {
	for _, g := range tg.groups {
		if !g.IsDefaults() {
			return false
		}
	}
	return true
}

// RestoreDefaults resets the selected groups (all by default) to defaults.
func (tg *Groups) RestoreDefaults(groupNames ...string) error {
	groups, err := tg.selectGroups(groupNames)
	if err != nil {
		return err
	}
	for _, g := range groups {
		g.RestoreDefaults()
	}
	return nil
}

// Reset clears the dirty flag of the selected groups (all by default).
func (tg *Groups) Reset(groupNames ...string) error {
	groups, err := tg.selectGroups(groupNames)
	if err != nil {
		return err
	}
	for _, g := range groups {
		g.ResetUpdated()
	}
	return nil
}

// Assign sets many tunables at once. An empty map restores all defaults.
// Otherwise every value is validated under the same rules as Set before any
// is applied, so a failed Assign leaves the registry untouched.
func (tg *Groups) Assign(values map[string]any) error {
	if len(values) == 0 {
		return tg.RestoreDefaults()
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	checked := make([]any, len(names))
	for i, name := range names {
		t, _, err := tg.GetTunable(name)
		if err != nil {
			return err
		}
		v, err := t.validate(values[name], false)
		if err != nil {
			return err
		}
		checked[i] = v
	}
	for i, name := range names {
		if err := tg.index[name].Set(name, checked[i]); err != nil {
			return err
		}
	}
	return nil
}

// Copy returns a deep, fully detached clone.
func (tg *Groups) Copy() *Groups {
	c := NewGroups()
	for _, name := range tg.order {
		c.insert(tg.groups[name].Copy())
	}
	return c
}

// Equal reports full structural equality: group names, costs, domains,
// defaults, current values and dirty flags.
func (tg *Groups) Equal(other *Groups) bool {
	if tg == other {
		return true
	}
	if tg == nil || other == nil || len(tg.groups) != len(other.groups) {
		return false
	}
	for name, g := range tg.groups {
		o, ok := other.groups[name]
		if !ok || !g.Equal(o) {
			return false
		}
	}
	return true
}

// String renders the canonical form: groups by descending cost then name,
// tunables by name.
func (tg *Groups) String() string {
	groups, _ := tg.selectGroups(nil)
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].cost != groups[j].cost {
			return groups[i].cost > groups[j].cost
		}
		return groups[i].name < groups[j].name
	})
	var parts []string
	for _, g := range groups {
		for _, t := range g.Tunables() {
			parts = append(parts, g.name+"::"+t.String())
		}
	}
	if len(parts) == 0 {
		return "{ }"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
