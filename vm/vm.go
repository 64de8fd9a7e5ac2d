// Package vm dispatches page faults: it validates a faulting address
// against the current address space's regions (falling back to a
// stack-growth heuristic), resolves the fault through the page table,
// and programs the TLB. Bootstrap wires a frame table and page table
// together against a given RAM and TLB.
package vm

import (
	"errors"
	"fmt"

	"github.com/KazaHesto/COMP3231-Asst3/addrspace"
	"github.com/KazaHesto/COMP3231-Asst3/frame"
	"github.com/KazaHesto/COMP3231-Asst3/machine"
	"github.com/KazaHesto/COMP3231-Asst3/pagetable"
	"github.com/KazaHesto/COMP3231-Asst3/stats"
)

// FaultType classifies a trap into the VM subsystem.
type FaultType int

const (
	Read FaultType = iota
	Write
	ReadOnly
)

func (f FaultType) String() string {
	switch f {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("FaultType(%d)", int(f))
	}
}

// Sentinel error kinds. Checked with errors.Is; wrapped with additional
// context via fmt.Errorf's %w.
var (
	// ErrFault covers both "address outside any region and outside the
	// stack heuristic" and a write to a read-only page (no COW in this
	// design, so that collapses to the same fault kind).
	ErrFault = errors.New("vm: fault")
	// ErrInvalid is an unrecognized fault type.
	ErrInvalid = errors.New("vm: invalid fault type")
	// ErrNoMem is returned when the page table is full or frame
	// allocation fails while resolving a fault.
	ErrNoMem = errors.New("vm: out of memory")
)

// Subsystem bundles the bootstrapped frame table, page table, and
// machine handles the fault handler needs. There is exactly one
// Subsystem per (simulated) machine; "current address space" stands in
// for the scheduler's notion of the running process, which is out of
// scope here and set explicitly by the caller via SetCurrentAS.
type Subsystem struct {
	FT    *frame.Table
	PT    *pagetable.Table
	Stats *stats.VMStats

	ram machine.RAM
	tlb machine.TLB
	ipl machine.IPL

	current *addrspace.AS
}

// Bootstrap sizes and allocates the page table at
// 2 * (RAM bytes / page size) entries, via the stealing allocator, so
// that frame.Bootstrap (which must run strictly afterward) finds the
// frames that allocation consumed already below FirstFree and marks
// them reserved.
func Bootstrap(ram machine.RAM, tlb machine.TLB) *Subsystem {
	numPages := int(2 * ram.Size() / machine.PageSize)
	// Reserve the physical frames the page table's backing storage
	// would occupy on real hardware, preserving the ordering invariant
	// even though the Go slice itself lives on the host heap.
	const bytesPerPTE = 32
	ram.StealMem(numPages * bytesPerPTE)

	st := &stats.VMStats{}
	ft := frame.Bootstrap(ram)
	pt := pagetable.New(numPages, ft, st)

	return &Subsystem{FT: ft, PT: pt, Stats: st, ram: ram, tlb: tlb}
}

// SetCurrentAS records the address space the next Fault call should be
// resolved against, standing in for the scheduler's process switch.
func (s *Subsystem) SetCurrentAS(as *addrspace.AS) {
	s.current = as
}

// CurrentAS returns the address space set by SetCurrentAS, or nil.
func (s *Subsystem) CurrentAS() *addrspace.AS {
	return s.current
}

// Fault is the trap-dispatch entry point. It rounds the fault address
// down to its page boundary, classifies the fault, validates it against
// the current address space's regions (and the implicit stack area),
// resolves it via the page table, and programs the TLB.
//
// Every exit path here releases whatever locks it took before
// returning: the page table's own Lookup brackets its critical section
// with a single defer, so there is no path back to the caller that
// leaves it locked; this function's job is only to validate and then
// delegate.
func (s *Subsystem) Fault(faultType FaultType, faultAddress uintptr) error {
	s.Stats.Faults.Inc()

	switch faultType {
	case ReadOnly:
		// This implementation never installs a writable TLB entry for
		// a read-only page, so a readonly-write fault is always user
		// error: there is no COW page to copy.
		s.Stats.FaultErrors.Inc()
		return ErrFault
	case Read:
		s.Stats.ReadFaults.Inc()
	case Write:
		s.Stats.WriteFaults.Inc()
	default:
		return ErrInvalid
	}

	as := s.current
	if as == nil {
		s.Stats.FaultErrors.Inc()
		return ErrFault
	}
	regions := as.Regions()
	if len(regions) == 0 {
		s.Stats.FaultErrors.Inc()
		return ErrFault
	}

	pageAddr := faultAddress &^ machine.PageMask
	write, ok := regionWrite(regions, pageAddr)
	if !ok {
		write, ok = stackHeuristic(regions, as.StackEnd(), pageAddr)
		if ok {
			s.Stats.StackFaults.Inc()
		}
	}
	if !ok {
		s.Stats.FaultErrors.Inc()
		return ErrFault
	}

	pa, err := s.PT.Lookup(as.Identity(), pageAddr, write)
	if err != nil {
		s.Stats.FaultErrors.Inc()
		return fmt.Errorf("%w: %v", ErrNoMem, err)
	}

	s.installTLB(pageAddr, pa, write)
	return nil
}

func regionWrite(regions []addrspace.Region, pageAddr uintptr) (write, ok bool) {
	for _, r := range regions {
		if r.Contains(pageAddr) {
			return r.Write, true
		}
	}
	return false, false
}

// stackHeuristic treats an address below stackEnd and above the end of
// the highest-based region as an implicit, writable stack page. Regions
// are kept in descending-base order by addrspace.DefineRegion, so
// regions[0] is that highest-based region; an address below it but
// still above some lower region's end falls in the gap between two
// regions and is not a stack access.
func stackHeuristic(regions []addrspace.Region, stackEnd, pageAddr uintptr) (write, ok bool) {
	highest := regions[0]
	if pageAddr < stackEnd && pageAddr > highest.Base+highest.Size {
		return true, true
	}
	return false, false
}

func (s *Subsystem) installTLB(vpage, pa uintptr, write bool) {
	s.ipl.Raise()
	defer s.ipl.Lower()

	ehi := uint32(vpage)
	elo := uint32(pa) | machine.TLBValid
	if write {
		elo |= machine.TLBDirty
	}
	s.tlb.WriteRandom(ehi, elo)
}

// CloneProc duplicates old's mapped pages into new's identity.
func (s *Subsystem) CloneProc(old, new *addrspace.AS) error {
	if err := s.PT.CloneProc(old.Identity(), new.Identity()); err != nil {
		if errors.Is(err, pagetable.ErrFull) || errors.Is(err, pagetable.ErrNoMem) {
			return fmt.Errorf("%w: %v", ErrNoMem, err)
		}
		return err
	}
	return nil
}

// FreeProc tears down every page table entry owned by as and then
// destroys the address space itself. Tolerates a nil as.
func (s *Subsystem) FreeProc(as *addrspace.AS) {
	if as == nil {
		return
	}
	s.PT.FreeProc(as.Identity())
	as.Destroy()
	if s.current == as {
		s.current = nil
	}
}

// TLBShootdown is unreachable on this uniprocessor build: there is no
// SMP TLB shootdown to perform, so any call is a programming error in
// the caller.
func (s *Subsystem) TLBShootdown(interface{}) {
	panic("vm: TLBShootdown is unreachable on a uniprocessor build")
}
