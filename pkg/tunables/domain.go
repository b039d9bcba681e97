package tunables

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Type is the declared type of a tunable parameter.
type Type string

const (
	TypeInt         Type = "int"
	TypeFloat       Type = "float"
	TypeCategorical Type = "categorical"
)

// Domain is the set of values a tunable accepts. The set of implementations is
// closed: IntDomain, FloatDomain and CategoricalDomain. Domains are immutable
// once a tunable has been built from them.
type Domain interface {
	Type() Type
	String() string

	// coerce converts a Go value into the canonical representation of the
	// domain (int64, float64 or string). Numeric strings are only accepted
	// when fromText is set.
	coerce(v any, fromText bool) (any, error)
	contains(v any) bool
	equal(other Domain) bool
	check() error
}

// IntDomain is an inclusive integer range plus optional out-of-range sentinel
// values (e.g. -1 meaning "disabled").
type IntDomain struct {
	Min     int64
	Max     int64
	Special []int64
}

func (d IntDomain) Type() Type { return TypeInt }

func (d IntDomain) String() string {
	if len(d.Special) == 0 {
		return fmt.Sprintf("[%d, %d]", d.Min, d.Max)
	}
	return fmt.Sprintf("[%d, %d]+%v", d.Min, d.Max, d.Special)
}

func (d IntDomain) coerce(v any, fromText bool) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case string:
		if !fromText {
			break
		}
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as int", x)
		}
		return floatToInt64(f)
	}
	return nil, fmt.Errorf("cannot use %T value %v as int", v, v)
}

func (d IntDomain) contains(v any) bool {
	n, ok := v.(int64)
	if !ok {
		return false
	}
	return (n >= d.Min && n <= d.Max) || slices.Contains(d.Special, n)
}

func (d IntDomain) equal(other Domain) bool {
	o, ok := other.(IntDomain)
	return ok && d.Min == o.Min && d.Max == o.Max && slices.Equal(d.Special, o.Special)
}

func (d IntDomain) check() error {
	if d.Min > d.Max {
		return fmt.Errorf("invalid range [%d, %d]", d.Min, d.Max)
	}
	return nil
}

// FloatDomain is an inclusive floating point range plus optional sentinel values.
type FloatDomain struct {
	Min     float64
	Max     float64
	Special []float64
}

func (d FloatDomain) Type() Type { return TypeFloat }

func (d FloatDomain) String() string {
	if len(d.Special) == 0 {
		return fmt.Sprintf("[%g, %g]", d.Min, d.Max)
	}
	return fmt.Sprintf("[%g, %g]+%v", d.Min, d.Max, d.Special)
}

func (d FloatDomain) coerce(v any, fromText bool) (any, error) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case string:
		if !fromText {
			return nil, fmt.Errorf("cannot use string value %q as float", x)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as float", x)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("cannot use %T value %v as float", v, v)
	}
	if math.IsNaN(f) {
		return nil, fmt.Errorf("NaN is not a valid float value")
	}
	return f, nil
}

func (d FloatDomain) contains(v any) bool {
	f, ok := v.(float64)
	if !ok {
		return false
	}
	return (f >= d.Min && f <= d.Max) || slices.Contains(d.Special, f)
}

func (d FloatDomain) equal(other Domain) bool {
	o, ok := other.(FloatDomain)
	return ok && d.Min == o.Min && d.Max == o.Max && slices.Equal(d.Special, o.Special)
}

func (d FloatDomain) check() error {
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) || d.Min > d.Max {
		return fmt.Errorf("invalid range [%g, %g]", d.Min, d.Max)
	}
	return nil
}

// CategoricalDomain is an ordered set of allowed string values.
type CategoricalDomain struct {
	Values []string
}

func (d CategoricalDomain) Type() Type { return TypeCategorical }

func (d CategoricalDomain) String() string {
	return "{" + strings.Join(d.Values, ", ") + "}"
}

func (d CategoricalDomain) coerce(v any, fromText bool) (any, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	if fromText && v != nil {
		// External sources may hand back categorical values like "4" as numbers.
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("cannot use %T value %v as categorical", v, v)
}

func (d CategoricalDomain) contains(v any) bool {
	s, ok := v.(string)
	return ok && slices.Contains(d.Values, s)
}

func (d CategoricalDomain) equal(other Domain) bool {
	o, ok := other.(CategoricalDomain)
	return ok && slices.Equal(d.Values, o.Values)
}

func (d CategoricalDomain) check() error {
	if len(d.Values) == 0 {
		return fmt.Errorf("categorical values cannot be empty")
	}
	seen := make(map[string]bool, len(d.Values))
	for _, v := range d.Values {
		if seen[v] {
			return fmt.Errorf("duplicate categorical value %q", v)
		}
		seen[v] = true
	}
	return nil
}

func uintToInt64(x uint64) (any, error) {
	if x > math.MaxInt64 {
		return nil, fmt.Errorf("value %d overflows int64", x)
	}
	return int64(x), nil
}

func floatToInt64(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("value %g is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("value %g overflows int64", f)
	}
	return int64(f), nil
}

func cloneDomain(d Domain) Domain {
	switch x := d.(type) {
	case IntDomain:
		x.Special = slices.Clone(x.Special)
		return x
	case FloatDomain:
		x.Special = slices.Clone(x.Special)
		return x
	case CategoricalDomain:
		x.Values = slices.Clone(x.Values)
		return x
	}
	return d
}
