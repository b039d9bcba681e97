package tunables

import (
	"errors"
	"testing"
)

func TestTunableSetInt(t *testing.T) {
	tun := MustTunable("kernel_sched_migration_cost_ns", IntDomain{Min: -1, Max: 500000, Special: []int64{-1}}, -1, "")

	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{"int", 250000, 250000, false},
		{"int32", int32(42), 42, false},
		{"uint8", uint8(7), 7, false},
		{"integral float", 1000.0, 1000, false},
		{"lower bound", -1, -1, false},
		{"upper bound", 500000, 500000, false},
		{"fractional float", 10.5, 0, true},
		{"above range", 500001, 0, true},
		{"below range", -2, 0, true},
		{"numeric string", "100", 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tun.Value()
			err := tun.Set(tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %v", tt.value)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %T", err)
				}
				if tun.Value() != before {
					t.Fatalf("value changed on failed set: %v -> %v", before, tun.Value())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tun.Value() != tt.want {
				t.Fatalf("expected %d, got %v", tt.want, tun.Value())
			}
		})
	}
}

func TestTunableNoClamping(t *testing.T) {
	tun := MustTunable("ratio", FloatDomain{Min: 0, Max: 1}, 0.5, "")
	err := tun.Set(1.01)
	if !errors.Is(err, ErrOutOfDomain) {
		t.Fatalf("expected ErrOutOfDomain, got %v", err)
	}
	if tun.Value() != 0.5 {
		t.Fatalf("expected value to stay at 0.5, got %v", tun.Value())
	}
	if err := tun.Set(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tun.Value() != float64(1) {
		t.Fatalf("expected float64 1, got %#v", tun.Value())
	}
}

func TestTunableSpecial(t *testing.T) {
	tun := MustTunable("cache_size", IntDomain{Min: 1, Max: 100, Special: []int64{-1, 0}}, 10, "")
	if tun.IsSpecial() {
		t.Fatal("default should not be special")
	}
	if err := tun.Set(0); err != nil {
		t.Fatalf("special value rejected: %v", err)
	}
	if !tun.IsSpecial() {
		t.Fatal("expected special value")
	}
}

func TestTunableCategorical(t *testing.T) {
	tun := MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4", "ext2"}}, "xfs", "")
	if err := tun.Set("ext4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tun.Set("btrfs"); err == nil {
		t.Fatal("expected error for value outside of categories")
	}
	if err := tun.Set(4); err == nil {
		t.Fatal("expected error for non-string value")
	}
	if tun.IsDefault() {
		t.Fatal("expected non-default value")
	}
}

func TestTunableCoerce(t *testing.T) {
	intTun := MustTunable("n", IntDomain{Min: 0, Max: 10}, 1, "")
	floatTun := MustTunable("f", FloatDomain{Min: 0, Max: 10}, 1.0, "")
	catTun := MustTunable("c", CategoricalDomain{Values: []string{"1", "2"}}, "1", "")

	tests := []struct {
		name string
		tun  *Tunable
		in   any
		want any
	}{
		{"int from string", intTun, "7", int64(7)},
		{"int from float string", intTun, "7.0", int64(7)},
		{"int out of domain is not checked", intTun, "70", int64(70)},
		{"float from string", floatTun, "2.5", 2.5},
		{"float from int", floatTun, 3, 3.0},
		{"categorical from number", catTun, 2, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tun.Coerce(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}

	if _, err := intTun.Coerce("seven"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewTunableInvalid(t *testing.T) {
	tests := []struct {
		name   string
		domain Domain
		def    any
	}{
		{"default out of range", IntDomain{Min: 0, Max: 10}, 11},
		{"inverted range", IntDomain{Min: 10, Max: 0}, 5},
		{"empty categories", CategoricalDomain{}, "a"},
		{"duplicate categories", CategoricalDomain{Values: []string{"a", "a"}}, "a"},
		{"default not a category", CategoricalDomain{Values: []string{"a"}}, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTunable("x", tt.domain, tt.def, ""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTunableEquality(t *testing.T) {
	a := MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4"}}, "xfs", "")
	b := MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4"}}, "xfs", "other description")

	if !a.Equal(b) {
		t.Fatal("expected equal tunables")
	}
	if err := b.Set("ext4"); err != nil {
		t.Fatal(err)
	}
	if a.Equal(b) {
		t.Fatal("expected tunables with different values to differ")
	}
	if !a.EqualsDefaults(b) {
		t.Fatal("EqualsDefaults should ignore current value")
	}

	c := MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext2"}}, "xfs", "")
	if a.EqualsDefaults(c) {
		t.Fatal("expected different domains to differ")
	}
}

func TestTunableString(t *testing.T) {
	tun := MustTunable("kernel_sched_migration_cost_ns", IntDomain{Min: -1, Max: 500000, Special: []int64{-1}}, -1, "")
	if err := tun.Set(40000); err != nil {
		t.Fatal(err)
	}
	want := "kernel_sched_migration_cost_ns[int]([-1, 500000]+[-1]:-1)=40000"
	if got := tun.String(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
