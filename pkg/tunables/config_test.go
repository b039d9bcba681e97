package tunables

import (
	"errors"
	"testing"
)

func TestParseGroupsJSON(t *testing.T) {
	data := []byte(`{
  "linux-swap": {
    "cost": 10,
    "params": {
      "swappiness": {"type": "int", "range": [0, 100], "default": 60},
      "vfs_cache_pressure": {"type": "float", "range": [0, 200], "default": 100}
    }
  }
}`)
	tg, err := ParseGroups(data)
	if err != nil {
		t.Fatalf("ParseGroups failed: %v", err)
	}
	if v, _ := tg.Get("swappiness"); v != int64(60) {
		t.Fatalf("expected 60, got %#v", v)
	}
	if v, _ := tg.Get("vfs_cache_pressure"); v != 100.0 {
		t.Fatalf("expected 100.0, got %#v", v)
	}
}

func TestParseGroupsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing type",
			yaml: `g: {cost: 1, params: {x: {range: [0, 1], default: 0}}}`,
		},
		{
			name: "unknown type",
			yaml: `g: {cost: 1, params: {x: {type: bool, default: true}}}`,
		},
		{
			name: "negative cost",
			yaml: `g: {cost: -1, params: {x: {type: int, range: [0, 1], default: 0}}}`,
		},
		{
			name: "no params",
			yaml: `g: {cost: 1}`,
		},
		{
			name: "range with three elements",
			yaml: `g: {cost: 1, params: {x: {type: int, range: [0, 1, 2], default: 0}}}`,
		},
		{
			name: "numeric without range",
			yaml: `g: {cost: 1, params: {x: {type: float, default: 0}}}`,
		},
		{
			name: "categorical with range",
			yaml: `g: {cost: 1, params: {x: {type: categorical, values: [a], range: [0, 1], default: a}}}`,
		},
		{
			name: "duplicate categories",
			yaml: `g: {cost: 1, params: {x: {type: categorical, values: [a, a], default: a}}}`,
		},
		{
			name: "missing default",
			yaml: `g: {cost: 1, params: {x: {type: int, range: [0, 1]}}}`,
		},
		{
			name: "default out of range",
			yaml: `g: {cost: 1, params: {x: {type: int, range: [0, 1], default: 5}}}`,
		},
		{
			name: "fractional int range",
			yaml: `g: {cost: 1, params: {x: {type: int, range: [0, 1.5], default: 0}}}`,
		},
		{
			name: "tunable in two groups",
			yaml: `
a: {cost: 1, params: {x: {type: int, range: [0, 1], default: 0}}}
b: {cost: 1, params: {x: {type: int, range: [0, 1], default: 0}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGroups([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestGroupsConfigRoundTrip(t *testing.T) {
	tg := loadFixture(t)
	rebuilt, err := NewGroupsFromConfig(tg.Config())
	if err != nil {
		t.Fatalf("NewGroupsFromConfig failed: %v", err)
	}
	if !rebuilt.Equal(tg) {
		t.Fatalf("round trip mismatch:\n%s\n%s", rebuilt, tg)
	}
}

func TestLoadGroupsMissingFile(t *testing.T) {
	if _, err := LoadGroups("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected error")
	}
}
