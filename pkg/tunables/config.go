package tunables

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GroupsConfig is the serialized form of a tunables registry: covariant group
// name -> group definition. JSON documents are accepted as well since JSON is
// valid YAML.
type GroupsConfig map[string]GroupConfig

// GroupConfig describes one covariant group.
type GroupConfig struct {
	Cost        float64                `yaml:"cost" json:"cost" validate:"gte=0"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Params      map[string]ParamConfig `yaml:"params" json:"params" validate:"required,min=1,dive"`
}

// ParamConfig describes one tunable.
type ParamConfig struct {
	Type        string    `yaml:"type" json:"type" validate:"required,oneof=int float categorical"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any       `yaml:"default" json:"default"`
	Range       []float64 `yaml:"range,omitempty" json:"range,omitempty" validate:"omitempty,len=2"`
	Special     []float64 `yaml:"special,omitempty" json:"special,omitempty"`
	Values      []string  `yaml:"values,omitempty" json:"values,omitempty" validate:"omitempty,unique"`
}

var validate = validator.New()

// ParseGroups parses and validates a tunables document.
func ParseGroups(data []byte) (*Groups, error) {
	var cfg GroupsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tunables yaml: %w", err)
	}
	tg, err := NewGroupsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid tunables: %w", err)
	}
	return tg, nil
}

// LoadGroups reads and parses a tunables file.
func LoadGroups(path string) (*Groups, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tunables file %s: %w", path, err)
	}
	tg, err := ParseGroups(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load tunables file %s: %w", path, err)
	}
	return tg, nil
}

// NewGroupsFromConfig validates a config and builds the registry from it.
// Groups are added in name order.
func NewGroupsFromConfig(cfg GroupsConfig) (*Groups, error) {
	names := make([]string, 0, len(cfg))
	for name := range cfg {
		names = append(names, name)
	}
	sort.Strings(names)

	tg := NewGroups()
	for _, name := range names {
		g, err := buildGroup(name, cfg[name])
		if err != nil {
			return nil, err
		}
		if err := tg.AddGroup(g); err != nil {
			return nil, err
		}
	}
	return tg, nil
}

func buildGroup(name string, gc GroupConfig) (*CovariantGroup, error) {
	if err := validate.Struct(&gc); err != nil {
		return nil, &ValidationError{Name: name, Reason: describeValidation(err)}
	}
	pnames := make([]string, 0, len(gc.Params))
	for pname := range gc.Params {
		pnames = append(pnames, pname)
	}
	sort.Strings(pnames)

	members := make([]*Tunable, 0, len(pnames))
	for _, pname := range pnames {
		t, err := buildTunable(pname, gc.Params[pname])
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
		members = append(members, t)
	}
	return NewCovariantGroup(name, gc.Cost, members...)
}

func buildTunable(name string, pc ParamConfig) (*Tunable, error) {
	if pc.Default == nil {
		return nil, &ValidationError{Name: name, Reason: "default is required"}
	}
	var domain Domain
	switch Type(pc.Type) {
	case TypeCategorical:
		if len(pc.Range) > 0 || len(pc.Special) > 0 {
			return nil, &ValidationError{Name: name, Reason: "categorical tunable cannot have range or special values"}
		}
		if len(pc.Values) == 0 {
			return nil, &ValidationError{Name: name, Reason: "categorical tunable requires values"}
		}
		domain = CategoricalDomain{Values: pc.Values}
	case TypeInt, TypeFloat:
		if len(pc.Values) > 0 {
			return nil, &ValidationError{Name: name, Reason: "numeric tunable cannot have categorical values"}
		}
		if len(pc.Range) != 2 {
			return nil, &ValidationError{Name: name, Reason: "numeric tunable requires a [min, max] range"}
		}
		if Type(pc.Type) == TypeFloat {
			domain = FloatDomain{Min: pc.Range[0], Max: pc.Range[1], Special: pc.Special}
			break
		}
		d, err := intDomain(pc.Range, pc.Special)
		if err != nil {
			return nil, &ValidationError{Name: name, Reason: err.Error()}
		}
		domain = d
	default:
		return nil, &ValidationError{Name: name, Reason: fmt.Sprintf("unknown tunable type %q", pc.Type)}
	}
	return NewTunable(name, domain, pc.Default, pc.Description)
}

func intDomain(rng, special []float64) (IntDomain, error) {
	bounds := make([]int64, 0, 2+len(special))
	for _, f := range append(append([]float64(nil), rng...), special...) {
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return IntDomain{}, fmt.Errorf("int tunable bound %g is not an integer", f)
		}
		bounds = append(bounds, int64(f))
	}
	d := IntDomain{Min: bounds[0], Max: bounds[1]}
	if len(bounds) > 2 {
		d.Special = bounds[2:]
	}
	return d, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("field %s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("field %s failed %s", fe.Namespace(), fe.Tag())
}

// Config renders the registry back into its serialized form. Defaults are
// written, not current values.
func (tg *Groups) Config() GroupsConfig {
	cfg := make(GroupsConfig, len(tg.groups))
	for name, g := range tg.groups {
		gc := GroupConfig{Cost: g.cost, Params: make(map[string]ParamConfig, len(g.tunables))}
		for tname, t := range g.tunables {
			pc := ParamConfig{Type: string(t.Type()), Description: t.description, Default: t.defaultValue}
			switch d := t.domain.(type) {
			case IntDomain:
				pc.Range = []float64{float64(d.Min), float64(d.Max)}
				for _, s := range d.Special {
					pc.Special = append(pc.Special, float64(s))
				}
			case FloatDomain:
				pc.Range = []float64{d.Min, d.Max}
				pc.Special = append(pc.Special, d.Special...)
			case CategoricalDomain:
				pc.Values = append(pc.Values, d.Values...)
			}
			gc.Params[tname] = pc
		}
		cfg[name] = gc
	}
	return cfg
}
