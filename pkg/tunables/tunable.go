package tunables

import (
	"fmt"
	"slices"
)

// Tunable is a single named parameter with a typed domain, a default and a
// current value. A tunable in isolation carries no dirty flag; change tracking
// is done by the owning CovariantGroup.
type Tunable struct {
	name         string
	description  string
	domain       Domain
	defaultValue any
	value        any
}

// NewTunable creates a tunable set to its default value.
func NewTunable(name string, domain Domain, defaultValue any, description string) (*Tunable, error) {
	if name == "" {
		return nil, &ValidationError{Reason: "tunable name cannot be empty"}
	}
	if domain == nil {
		return nil, &ValidationError{Name: name, Reason: "domain is required"}
	}
	if err := domain.check(); err != nil {
		return nil, &ValidationError{Name: name, Reason: err.Error()}
	}
	t := &Tunable{
		name:        name,
		description: description,
		domain:      cloneDomain(domain),
	}
	def, err := t.validate(defaultValue, true)
	if err != nil {
		return nil, fmt.Errorf("invalid default: %w", err)
	}
	t.defaultValue = def
	t.value = def
	return t, nil
}

// MustTunable is like NewTunable but panics on error. Intended for tests and
// static tables.
func MustTunable(name string, domain Domain, defaultValue any, description string) *Tunable {
	t, err := NewTunable(name, domain, defaultValue, description)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tunable) Name() string        { return t.name }
func (t *Tunable) Type() Type          { return t.domain.Type() }
func (t *Tunable) Description() string { return t.description }
func (t *Tunable) Domain() Domain      { return t.domain }
func (t *Tunable) Value() any          { return t.value }
func (t *Tunable) Default() any        { return t.defaultValue }

// IsDefault reports whether the current value equals the default.
func (t *Tunable) IsDefault() bool {
	return t.value == t.defaultValue
}

// IsSpecial reports whether the current value is one of the numeric sentinels.
func (t *Tunable) IsSpecial() bool {
	switch d := t.domain.(type) {
	case IntDomain:
		n, _ := t.value.(int64)
		return slices.Contains(d.Special, n)
	case FloatDomain:
		f, _ := t.value.(float64)
		return slices.Contains(d.Special, f)
	}
	return false
}

// Set assigns a new value. The value is converted to the canonical Go type of
// the domain and must be within it; nothing is ever clamped.
func (t *Tunable) Set(v any) error {
	val, err := t.validate(v, false)
	if err != nil {
		return err
	}
	t.value = val
	return nil
}

// Coerce converts external data (including numeric strings) to the declared
// type without checking the domain.
func (t *Tunable) Coerce(v any) (any, error) {
	val, err := t.domain.coerce(v, true)
	if err != nil {
		return nil, &ValidationError{Name: t.name, Reason: err.Error()}
	}
	return val, nil
}

// Validate coerces v and checks it against the domain without assigning it.
func (t *Tunable) Validate(v any) (any, error) {
	return t.validate(v, true)
}

func (t *Tunable) validate(v any, fromText bool) (any, error) {
	val, err := t.domain.coerce(v, fromText)
	if err != nil {
		return nil, &ValidationError{Name: t.name, Reason: err.Error()}
	}
	if !t.domain.contains(val) {
		return nil, &ValidationError{
			Name:   t.name,
			Reason: fmt.Sprintf("value %v is outside of domain %s", val, t.domain),
			Err:    ErrOutOfDomain,
		}
	}
	return val, nil
}

// EqualsDefaults compares name, type, domain and default, ignoring the
// current value.
func (t *Tunable) EqualsDefaults(other *Tunable) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return t.name == other.name &&
		t.domain.equal(other.domain) &&
		t.defaultValue == other.defaultValue
}

// Equal is EqualsDefaults plus the current value.
func (t *Tunable) Equal(other *Tunable) bool {
	return t.EqualsDefaults(other) && t.value == other.value
}

func (t *Tunable) copy() *Tunable {
	c := *t
	return &c
}

func (t *Tunable) String() string {
	return fmt.Sprintf("%s[%s](%s:%v)=%v", t.name, t.Type(), t.domain, t.defaultValue, t.value)
}
