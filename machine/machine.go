// Package machine is the hardware boundary the VM subsystem is built
// against: RAM sizing and early-boot stealing allocation, and the
// software-filled TLB. Real targets wire a bootloader-derived RAM and a
// MMIO-backed TLB; this package also ships the implementations this
// module needs to run and test entirely in userspace.
package machine

import (
	"fmt"

	"github.com/KazaHesto/COMP3231-Asst3/util"
)

// PageShift is the base-2 exponent of the page size.
const PageShift uint = 12

// PageSize is the size of a page/frame in bytes.
const PageSize uintptr = 1 << PageShift

// PageMask masks the page-offset bits of an address.
const PageMask uintptr = PageSize - 1

// PageFrame masks the page-number bits of an address.
const PageFrame uintptr = ^PageMask

// UserStack is the fixed architectural top of the user stack.
const UserStack uintptr = 0x80000000

// NumTLB is the number of hardware TLB entries.
const NumTLB int = 64

// TLB entry flag bits, in the low bits of the "elo" word.
const (
	TLBValid uint32 = 1 << 0
	TLBDirty uint32 = 1 << 1
)

// TLBInvalidHi is the sentinel ehi value for an unused TLB slot.
func TLBInvalidHi(i int) uint32 { return uint32(i) << PageShift }

// TLBInvalidLo is the sentinel elo value for an unused TLB slot.
func TLBInvalidLo() uint32 { return 0 }

// RAM is the early-boot physical memory contract: size discovery, the
// first free physical address, and the stealing allocator that hands out
// frames before the frame table exists (and can never free them). It
// also exposes a byte-slice view of a frame for zero-fill and copy,
// standing in for the kernel's direct map.
type RAM interface {
	// Size reports the total amount of physical memory in bytes.
	Size() uintptr
	// FirstFree reports the first physical address not already consumed
	// by the kernel image and any stolen memory.
	FirstFree() uintptr
	// StealMem bumps the first-free pointer by n bytes, page-rounded,
	// and returns the physical address of the reserved region. Valid
	// only before the frame table takes over allocation.
	StealMem(n int) uintptr
	// Frame returns a PageSize-length byte view of the frame at the
	// given page-aligned physical address.
	Frame(pa uintptr) []byte
}

// TLB is the software-managed translation lookaside buffer: read,
// write-at-index, write-at-random-index, and full invalidate.
type TLB interface {
	Read(i int) (ehi, elo uint32)
	Write(ehi, elo uint32, i int)
	WriteRandom(ehi, elo uint32)
	Invalidate()
}

// IPL models "raised interrupt priority level". Real hardware masks
// interrupts on the local CPU; there is no interrupt controller here, so
// Raise/Lower are markers that preserve the bracketing discipline the
// fault handler and AS activation both require around TLB programming.
type IPL struct {
	raised bool
}

// Raise masks interrupts on the local CPU.
func (i *IPL) Raise() {
	if i.raised {
		panic("machine: IPL already raised")
	}
	i.raised = true
}

// Lower restores the previous interrupt priority.
func (i *IPL) Lower() {
	if !i.raised {
		panic("machine: IPL not raised")
	}
	i.raised = false
}

func roundup(v, b uintptr) uintptr {
	return util.Roundup(v, b)
}

func checkSize(n int) {
	if n <= 0 {
		panic(fmt.Sprintf("machine: bad size %d", n))
	}
}
