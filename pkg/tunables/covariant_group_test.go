package tunables

import (
	"errors"
	"testing"
)

func newBootGroup(t *testing.T) *CovariantGroup {
	t.Helper()
	g, err := NewCovariantGroup("boot", 300,
		MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4", "ext2"}}, "xfs", "Root file system"),
	)
	if err != nil {
		t.Fatalf("NewCovariantGroup failed: %v", err)
	}
	return g
}

func TestCovariantGroupSetMarksUpdated(t *testing.T) {
	g := newBootGroup(t)
	if g.IsUpdated() {
		t.Fatal("new group should not be updated")
	}

	// Assigning the current value still counts as an update.
	if err := g.Set("rootfs", "xfs"); err != nil {
		t.Fatal(err)
	}
	if !g.IsUpdated() {
		t.Fatal("expected group to be updated")
	}

	g.ResetUpdated()
	if g.IsUpdated() {
		t.Fatal("expected flag to be cleared")
	}
	if v, _ := g.Get("rootfs"); v != "xfs" {
		t.Fatalf("ResetUpdated must not change values, got %v", v)
	}
}

func TestCovariantGroupFailedSetKeepsFlag(t *testing.T) {
	g := newBootGroup(t)
	if err := g.Set("rootfs", "ntfs"); err == nil {
		t.Fatal("expected validation error")
	}
	if g.IsUpdated() {
		t.Fatal("failed set must not mark the group updated")
	}
	var lerr *LookupError
	if err := g.Set("missing", 1); !errors.As(err, &lerr) {
		t.Fatalf("expected LookupError, got %v", err)
	}
}

func TestCovariantGroupRestoreDefaults(t *testing.T) {
	g := newBootGroup(t)
	if err := g.Set("rootfs", "ext2"); err != nil {
		t.Fatal(err)
	}
	g.ResetUpdated()

	g.RestoreDefaults()
	if !g.IsDefaults() {
		t.Fatal("expected defaults")
	}
	if !g.IsUpdated() {
		t.Fatal("restoring defaults is an assignment")
	}
}

func TestCovariantGroupCopy(t *testing.T) {
	g := newBootGroup(t)
	if err := g.Set("rootfs", "ext4"); err != nil {
		t.Fatal(err)
	}

	c := g.Copy()
	if !c.Equal(g) {
		t.Fatal("copy should equal original")
	}
	if err := c.Set("rootfs", "ext2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := g.Get("rootfs"); v != "ext4" {
		t.Fatalf("original changed through copy: %v", v)
	}
	if c.Equal(g) {
		t.Fatal("copies should diverge")
	}
	if !c.EqualsDefaults(g) {
		t.Fatal("structure should still match")
	}
}

func TestCovariantGroupEqualsDefaults(t *testing.T) {
	g := newBootGroup(t)
	costly, err := NewCovariantGroup("boot", 500,
		MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4", "ext2"}}, "xfs", ""),
	)
	if err != nil {
		t.Fatal(err)
	}
	if g.EqualsDefaults(costly) {
		t.Fatal("different cost should not be compatible")
	}

	otherDefault, err := NewCovariantGroup("boot", 300,
		MustTunable("rootfs", CategoricalDomain{Values: []string{"xfs", "ext4", "ext2"}}, "ext4", ""),
	)
	if err != nil {
		t.Fatal(err)
	}
	if g.EqualsDefaults(otherDefault) {
		t.Fatal("different default should not be compatible")
	}
}

func TestNewCovariantGroupInvalid(t *testing.T) {
	tun := MustTunable("x", IntDomain{Min: 0, Max: 1}, 0, "")
	if _, err := NewCovariantGroup("g", -1, tun); err == nil {
		t.Fatal("expected error for negative cost")
	}
	_, err := NewCovariantGroup("g", 1, tun, MustTunable("x", IntDomain{Min: 0, Max: 1}, 0, ""))
	if !errors.Is(err, ErrDuplicateTunable) {
		t.Fatalf("expected ErrDuplicateTunable, got %v", err)
	}
}
