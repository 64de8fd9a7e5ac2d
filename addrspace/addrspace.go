// Package addrspace implements the per-process address space: a list of
// defined virtual regions and the user-stack top. It maps every page
// exactly once and never shares or swaps a frame between address
// spaces outside of an explicit clone, so it needs no page tables or
// copy-on-write machinery of its own; those live in the page table and
// fault handler.
package addrspace

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/KazaHesto/COMP3231-Asst3/machine"
)

// Region is a contiguous virtual range with uniform permissions. Modified
// is transient state used only between PrepareLoad and CompleteLoad.
type Region struct {
	Base     uintptr
	Size     uintptr
	Read     bool
	Write    bool
	modified bool
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Base && addr < r.Base+r.Size
}

// AS is a process address space: region list plus the stack boundary.
// Its identity (a stable, never-reused-while-live token used as the page
// table's process key) is the AS's own heap address: the Go runtime
// cannot reuse that address while any reference to the AS is reachable.
// The page table stores the identity as a plain uintptr, which does not
// keep the AS reachable, so the identity stays unique only while the
// caller still holds the AS (vm.Subsystem.FreeProc tears down its page
// table entries before the caller drops it).
type AS struct {
	mu       sync.Mutex
	regions  []*Region
	stackEnd uintptr
}

// New returns a fresh, empty address space with no regions and
// stackEnd set to the architectural UserStack constant.
func New() *AS {
	return &AS{stackEnd: machine.UserStack}
}

// Identity returns the opaque, stable token the page table uses as this
// address space's key. Never zero (the page table reserves 0 as its
// empty-slot sentinel).
func (as *AS) Identity() uintptr {
	id := uintptr(unsafe.Pointer(as))
	if id == 0 {
		panic("addrspace: identity must not be zero")
	}
	return id
}

// Copy deep-copies src's region list (base, size, permissions, modified
// flag) into a new AS, preserving list order.
func Copy(src *AS) (*AS, error) {
	if src == nil {
		return nil, fmt.Errorf("addrspace: Copy of nil AS")
	}
	src.mu.Lock()
	defer src.mu.Unlock()

	dst := &AS{stackEnd: src.stackEnd}
	dst.regions = make([]*Region, len(src.regions))
	for i, r := range src.regions {
		cp := *r
		dst.regions[i] = &cp
	}
	return dst, nil
}

// Destroy releases the region list. It is always paired, by the caller,
// with page-table teardown for this AS's identity (vm.FreeProc does
// both). Tolerates a nil receiver.
func (as *AS) Destroy() {
	if as == nil {
		return
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions = nil
}

// ErrRegionOverlapsStack is returned when a region's end would reach or
// exceed the stack boundary.
var ErrRegionOverlapsStack = fmt.Errorf("addrspace: region end reaches or exceeds stack_end")

// DefineRegion appends a region to the address space, keeping the list
// ordered by descending base address; Regions returns the list in this
// order, and the fault handler's stack heuristic depends on regions[0]
// being the highest-based region. The
// executable bit is accepted but ignored: permissions reduce to
// read/write. Regions whose end reaches or exceeds stackEnd are
// rejected; overlap between regions is not checked, since the loader
// constructing them is trusted.
func (as *AS) DefineRegion(vaddr, size uintptr, r, w, x bool) error {
	_ = x
	as.mu.Lock()
	defer as.mu.Unlock()

	if vaddr+size >= as.stackEnd {
		return ErrRegionOverlapsStack
	}
	region := &Region{Base: vaddr, Size: size, Read: r, Write: w}

	i := 0
	for i < len(as.regions) && as.regions[i].Base > vaddr {
		i++
	}
	as.regions = append(as.regions, nil)
	copy(as.regions[i+1:], as.regions[i:])
	as.regions[i] = region
	return nil
}

// PrepareLoad makes every non-writable region temporarily writable,
// recording which ones were widened so CompleteLoad can revert exactly
// those and no others.
func (as *AS) PrepareLoad() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, r := range as.regions {
		if !r.Write {
			r.Write = true
			r.modified = true
		}
	}
}

// CompleteLoad reverts every region PrepareLoad widened back to
// non-writable.
func (as *AS) CompleteLoad() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, r := range as.regions {
		if r.modified {
			r.Write = false
			r.modified = false
		}
	}
}

// DefineStack returns the top of the user stack. It does not create a
// region; the fault handler recognizes the stack area implicitly via
// the stack heuristic.
func (as *AS) DefineStack() (sp uintptr) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.stackEnd
}

// StackEnd is DefineStack under a name that doesn't imply "also
// allocates a stack pointer", for callers that just need the boundary.
func (as *AS) StackEnd() uintptr {
	return as.DefineStack()
}

// Activate installs as as current on this CPU by invalidating every TLB
// entry under raised interrupt priority. There is no partial flush in
// this design; ASID is always zero.
func (as *AS) Activate(tlb machine.TLB, ipl *machine.IPL) {
	ipl.Raise()
	tlb.Invalidate()
	ipl.Lower()
}

// Deactivate is a no-op: there is nothing to save when switching away
// from this address space.
func (as *AS) Deactivate() {}

// Regions returns a snapshot of the region list in its current order.
// Callers must not mutate the returned regions.
func (as *AS) Regions() []Region {
	as.mu.Lock()
	defer as.mu.Unlock()
	out := make([]Region, len(as.regions))
	for i, r := range as.regions {
		out[i] = *r
	}
	return out
}
