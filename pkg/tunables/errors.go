package tunables

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateGroup is wrapped by the ValidationError returned when a
	// covariant group name is already registered.
	ErrDuplicateGroup = errors.New("duplicate covariant group")
	// ErrDuplicateTunable is wrapped by the ValidationError returned when a
	// tunable name is already indexed by another group.
	ErrDuplicateTunable = errors.New("duplicate tunable")
	// ErrOutOfDomain is wrapped when a value is outside of the tunable domain.
	ErrOutOfDomain = errors.New("value out of domain")
)

// ValidationError reports a value outside of a declared domain, a malformed
// config or a duplicate name on insert.
type ValidationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Name, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IncompatibleGroupsError indicates that two covariant groups with the same
// name disagree on their tunables, domains or defaults.
type IncompatibleGroupsError struct {
	Group string
}

func (e *IncompatibleGroupsError) Error() string {
	return fmt.Sprintf("incompatible covariant groups named %q: tunables, domains or defaults differ", e.Group)
}

// LookupError indicates an unknown tunable or covariant group name.
type LookupError struct {
	Kind string // "tunable" or "group"
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown %s: %q", e.Kind, e.Name)
}

func unknownTunable(name string) error {
	return &LookupError{Kind: "tunable", Name: name}
}

func unknownGroup(name string) error {
	return &LookupError{Kind: "group", Name: name}
}
