package portfs

import (
	"fmt"
	"path/filepath"
	"testing"
)

func newDirTestMount(t *testing.T) *Mount {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	if err := Format(path, 4<<20, DefaultBlockSize); err != nil {
		t.Fatalf("Format: %v", err)
	}
	m, err := Mount(path)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { m.Unmount() })
	return m
}

func TestDirAddFindRemove(t *testing.T) {
	m := newDirTestMount(t)
	dir := m.Root().entry

	if err := m.dirAdd(dir, "one.txt", 10); err != nil {
		t.Fatalf("dirAdd: %v", err)
	}
	got, ok := m.dirFind(dir, "one.txt")
	if !ok {
		t.Fatal("dirFind did not locate a just-added entry")
	}
	if got.InodeNumber != 10 {
		t.Fatalf("InodeNumber = %d, want 10", got.InodeNumber)
	}

	if !m.dirRemove(dir, "one.txt") {
		t.Fatal("dirRemove reported no match")
	}
	if _, ok := m.dirFind(dir, "one.txt"); ok {
		t.Fatal("dirFind still sees a removed entry")
	}
	if m.dirRemove(dir, "one.txt") {
		t.Fatal("dirRemove matched an already-removed entry")
	}
}

func TestDirFindMissingName(t *testing.T) {
	m := newDirTestMount(t)
	dir := m.Root().entry

	if _, ok := m.dirFind(dir, "nope"); ok {
		t.Fatal("dirFind matched a name that was never added")
	}
}

func TestDirAddReusesFreedSlot(t *testing.T) {
	m := newDirTestMount(t)
	dir := m.Root().entry

	max := m.sb.MaxDirEntries()
	for i := 0; i < max; i++ {
		if err := m.dirAdd(dir, fmt.Sprintf("f%d", i), uint32(100+i)); err != nil {
			t.Fatalf("dirAdd %d: %v", i, err)
		}
	}

	if err := m.dirAdd(dir, "overflow", 999); KindOf(err) != ENoSpace {
		t.Fatalf("dirAdd on a full directory = %v, want ENoSpace", err)
	}

	if !m.dirRemove(dir, "f0") {
		t.Fatal("dirRemove of f0 failed")
	}
	if err := m.dirAdd(dir, "newcomer", 1000); err != nil {
		t.Fatalf("dirAdd into a freed slot: %v", err)
	}
	if _, ok := m.dirFind(dir, "newcomer"); !ok {
		t.Fatal("newcomer not found after reusing a freed slot")
	}
}

func TestDirIsEmpty(t *testing.T) {
	m := newDirTestMount(t)
	dir := m.Root().entry

	if !m.dirIsEmpty(dir) {
		t.Fatal("a freshly formatted root should report empty (no DirBlock yet)")
	}

	if err := m.dirAdd(dir, "x", 5); err != nil {
		t.Fatalf("dirAdd: %v", err)
	}
	if m.dirIsEmpty(dir) {
		t.Fatal("directory with one live entry should not report empty")
	}

	m.dirRemove(dir, "x")
	if !m.dirIsEmpty(dir) {
		t.Fatal("directory should report empty once its only entry is removed")
	}
}

func TestDirIterateOrderAndSkipsFreeSlots(t *testing.T) {
	m := newDirTestMount(t)
	dir := m.Root().entry

	names := []string{"a", "b", "c"}
	for i, n := range names {
		if err := m.dirAdd(dir, n, uint32(20+i)); err != nil {
			t.Fatalf("dirAdd %s: %v", n, err)
		}
	}
	m.dirRemove(dir, "b")

	out, err := m.dirIterate(dir)
	if err != nil {
		t.Fatalf("dirIterate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("dirIterate returned %d entries, want 2: %+v", len(out), out)
	}
	if out[0].Name != "a" || out[1].Name != "c" {
		t.Fatalf("dirIterate order = %+v, want [a c]", out)
	}
}
