package addrspace

import (
	"testing"

	"github.com/KazaHesto/COMP3231-Asst3/machine"
)

func TestNewHasArchitecturalStackEnd(t *testing.T) {
	as := New()
	if got := as.StackEnd(); got != machine.UserStack {
		t.Fatalf("StackEnd() = %#x, want %#x", got, machine.UserStack)
	}
	if len(as.Regions()) != 0 {
		t.Fatal("fresh AS has regions, want none")
	}
}

func TestDefineRegionRejectsOverlapWithStack(t *testing.T) {
	as := New()
	err := as.DefineRegion(as.StackEnd()-0x1000, 0x2000, true, false, true)
	if err != ErrRegionOverlapsStack {
		t.Fatalf("err = %v, want ErrRegionOverlapsStack", err)
	}
}

func TestDefineRegionAccepted(t *testing.T) {
	as := New()
	if err := as.DefineRegion(0x400000, 0x2000, true, false, true); err != nil {
		t.Fatalf("DefineRegion: %v", err)
	}
	regions := as.Regions()
	if len(regions) != 1 {
		t.Fatalf("len(Regions()) = %d, want 1", len(regions))
	}
	r := regions[0]
	if r.Base != 0x400000 || r.Size != 0x2000 || !r.Read || r.Write {
		t.Fatalf("region = %+v, unexpected", r)
	}
}

func TestPrepareCompleteLoadRestoresWriteBit(t *testing.T) {
	as := New()
	if err := as.DefineRegion(0x400000, 0x1000, true, false, true); err != nil {
		t.Fatal(err)
	}
	if err := as.DefineRegion(0x500000, 0x1000, true, true, false); err != nil {
		t.Fatal(err)
	}

	as.PrepareLoad()
	for _, r := range as.Regions() {
		if !r.Write {
			t.Fatalf("region base %#x not writable after PrepareLoad", r.Base)
		}
	}

	as.CompleteLoad()
	regions := as.Regions()
	// Regions are kept in descending-base order, so the read-only
	// 0x400000 region is regions[1].
	if regions[1].Write {
		t.Fatal("read-only region still writable after CompleteLoad")
	}
	// the region that was writable to begin with (0x500000) was never
	// "modified" by PrepareLoad and must remain writable.
	found := false
	for _, r := range regions {
		if r.Base == 0x500000 {
			found = true
			if !r.Write {
				t.Fatal("originally-writable region lost its write bit")
			}
		}
	}
	if !found {
		t.Fatal("region 0x500000 missing")
	}
}

func TestCopyIsIndependentDeepCopy(t *testing.T) {
	src := New()
	if err := src.DefineRegion(0x400000, 0x1000, true, false, true); err != nil {
		t.Fatal(err)
	}
	dst, err := Copy(src)
	if err != nil {
		t.Fatal(err)
	}

	if err := dst.DefineRegion(0x500000, 0x1000, true, true, false); err != nil {
		t.Fatal(err)
	}
	if len(src.Regions()) != 1 {
		t.Fatalf("mutating dst affected src: %d regions", len(src.Regions()))
	}
	if len(dst.Regions()) != 2 {
		t.Fatalf("dst has %d regions, want 2", len(dst.Regions()))
	}

	src.Destroy()
	dstRegions := dst.Regions()
	if len(dstRegions) != 2 {
		t.Fatal("destroying src affected dst's region list")
	}
}

func TestIdentityNeverZeroAndStable(t *testing.T) {
	as := New()
	id1 := as.Identity()
	id2 := as.Identity()
	if id1 == 0 {
		t.Fatal("Identity() == 0")
	}
	if id1 != id2 {
		t.Fatal("Identity() not stable across calls")
	}
}

func TestDestroyToleratesNil(t *testing.T) {
	var as *AS
	as.Destroy() // must not panic
}

func TestActivateInvalidatesTLB(t *testing.T) {
	as := New()
	tlb := machine.NewFakeTLB()
	tlb.WriteRandom(0x1000, machine.TLBValid)
	var ipl machine.IPL
	as.Activate(tlb, &ipl)
	if _, ok := tlb.Lookup(0x1000); ok {
		t.Fatal("Activate did not flush the TLB")
	}
}
