package pagetable

import (
	"testing"

	"github.com/KazaHesto/COMP3231-Asst3/frame"
	"github.com/KazaHesto/COMP3231-Asst3/machine"
)

func newFixture(t *testing.T, numFrames, numPages int) (*Table, *frame.Table) {
	t.Helper()
	ram := machine.NewSliceRAM(numFrames*int(machine.PageSize), 0)
	ft := frame.Bootstrap(ram)
	return New(numPages, ft, nil), ft
}

const pg = machine.PageSize

func TestLookupInsertsOnMiss(t *testing.T) {
	pt, _ := newFixture(t, 8, 16)
	pa, err := pt.Lookup(1, 0*pg, false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	pa2, err := pt.Lookup(1, 0*pg, false)
	if err != nil {
		t.Fatalf("second Lookup: %v", err)
	}
	if pa != pa2 {
		t.Fatalf("repeat lookup returned different frame: %#x != %#x", pa, pa2)
	}
}

func TestLookupDistinctProcessesDontCollideBySequentialPage(t *testing.T) {
	pt, _ := newFixture(t, 8, 16)
	a, err := pt.Lookup(1, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pt.Lookup(2, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two distinct processes mapping page 0 got the same frame")
	}
	if pt.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", pt.Count())
	}
}

func TestPageTableFullReturnsErrFull(t *testing.T) {
	pt, _ := newFixture(t, 32, 4)
	for i := 0; i < 4; i++ {
		if _, err := pt.Lookup(1, uintptr(i)*pg, false); err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
	}
	if _, err := pt.Lookup(1, 4*pg, false); err != ErrFull {
		t.Fatalf("err = %v, want ErrFull", err)
	}
}

func TestInvariantHoldsUnderForcedCollisions(t *testing.T) {
	// numPages = 4; asid=1 with vpages 0, 4*pg, 8*pg all hash to the
	// same bucket (vpage>>shift contributes 0, 4, 8, all ≡ 0 mod 4),
	// forcing three-deep linear probing.
	pt, _ := newFixture(t, 32, 4)
	for i := 0; i < 3; i++ {
		if _, err := pt.Lookup(1, uintptr(i*4)*pg, false); err != nil {
			t.Fatalf("Lookup %d: %v", i, err)
		}
	}
	if !pt.Invariant() {
		t.Fatal("linear-probing invariant violated after forced collisions")
	}
	if pt.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", pt.Count())
	}
}

func TestFreeProcRemovesOnlyThatAsidAndRepairsInvariant(t *testing.T) {
	pt, _ := newFixture(t, 32, 4)
	for i := 0; i < 3; i++ {
		if _, err := pt.Lookup(1, uintptr(i*4)*pg, false); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := pt.Lookup(2, 0, false); err != nil {
		t.Fatal(err)
	}

	pt.FreeProc(1)

	if !pt.Invariant() {
		t.Fatal("invariant violated after FreeProc")
	}
	if pt.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (only asid 2's entry should remain)", pt.Count())
	}
	if _, err := pt.Lookup(2, 0, false); err != nil {
		t.Fatalf("surviving asid's entry is gone: %v", err)
	}
}

func TestFreeProcOnEmptyAsidIsNoop(t *testing.T) {
	pt, _ := newFixture(t, 8, 16)
	pt.FreeProc(0)
	pt.FreeProc(99) // nothing owned by 99
	if pt.Count() != 0 {
		t.Fatal("FreeProc mutated table for an absent asid")
	}
}

func TestCloneProcCopiesContentIndependently(t *testing.T) {
	pt, ft := newFixture(t, 32, 16)
	pa, err := pt.Lookup(10, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	ft.RAM().Frame(pa)[0] = 0xAB

	if err := pt.CloneProc(10, 20); err != nil {
		t.Fatalf("CloneProc: %v", err)
	}

	paB, err := pt.Lookup(20, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if paB == pa {
		t.Fatal("clone shares the original frame, want a distinct copy")
	}
	if got := ft.RAM().Frame(paB)[0]; got != 0xAB {
		t.Fatalf("cloned byte = %#x, want 0xAB", got)
	}

	ft.RAM().Frame(paB)[0] = 0xCD
	if got := ft.RAM().Frame(pa)[0]; got != 0xAB {
		t.Fatalf("write through clone visible in original: got %#x, want 0xAB", got)
	}
}

func TestCloneProcFreeOfCloneLeavesOriginalUnchanged(t *testing.T) {
	pt, ft := newFixture(t, 32, 16)
	pa, err := pt.Lookup(10, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	ft.RAM().Frame(pa)[0] = 0x42

	if err := pt.CloneProc(10, 20); err != nil {
		t.Fatal(err)
	}
	pt.FreeProc(20)

	if pt.Count() != 1 {
		t.Fatalf("Count() = %d after freeing clone, want 1", pt.Count())
	}
	got, err := pt.Lookup(10, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != pa {
		t.Fatal("original frame changed after freeing the clone")
	}
	if ft.RAM().Frame(pa)[0] != 0x42 {
		t.Fatal("original frame contents changed after freeing the clone")
	}
}

func TestCloneProcRollsBackOnFailure(t *testing.T) {
	// numPages == 2: old has one entry; once new's own slot is also
	// occupied (simulate by pre-filling the table), clone should roll
	// back cleanly and leave old untouched.
	pt, _ := newFixture(t, 32, 2)
	if _, err := pt.Lookup(1, 0, false); err != nil {
		t.Fatal(err)
	}
	// Fill every remaining slot so asid 2 can never find room.
	if _, err := pt.Lookup(3, pg, false); err != nil {
		t.Fatal(err)
	}

	err := pt.CloneProc(1, 2)
	if err == nil {
		t.Fatal("expected CloneProc to fail when the table has no room")
	}
	if pt.Count() != 2 {
		t.Fatalf("Count() = %d after rollback, want 2 (original state)", pt.Count())
	}
	if _, err := pt.Lookup(1, 0, false); err != nil {
		t.Fatalf("old asid's entry damaged by failed clone: %v", err)
	}
}
