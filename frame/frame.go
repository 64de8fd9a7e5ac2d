// Package frame implements the frame table: the physical-memory
// allocator tracking the state of every page-sized frame in RAM. It
// serves single-frame allocations and frees under its own lock, using a
// three-state model (reserved/free/used) with no per-frame reference
// counting, since every mapped frame belongs to exactly one page table
// entry.
package frame

import (
	"fmt"
	"sync"

	"github.com/KazaHesto/COMP3231-Asst3/machine"
)

// State is the lifecycle state of a single physical frame.
type State int

const (
	// Reserved frames sit below the first free address and never
	// transition to any other state.
	Reserved State = iota
	// Free frames are available for allocation.
	Free
	// Used frames are allocated, either to a user page or a kernel
	// allocation.
	Used
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case Free:
		return "free"
	case Used:
		return "used"
	default:
		return "invalid"
	}
}

// Table is the dense, frame-number-indexed frame table. ft_lock in the
// contract is Table.mu; it protects the state array and free_cursor
// only, never TLB programming.
type Table struct {
	mu sync.Mutex

	ram    machine.RAM
	state  []State
	cursor int // free_cursor: index of a free frame, or len(state) if none
}

// Stats is a snapshot of frame counts by state.
type Stats struct {
	NumFrames, Reserved, Free, Used int
}

// Bootstrap sizes and initializes the frame table from ram, marking
// every frame below ram.FirstFree() as reserved and the remainder as
// free, with free_cursor pointed at the first free frame. Must be
// called exactly once, and strictly after any early-boot stealing
// allocation the caller intends to perform (so that the frames it
// consumed land below FirstFree and are marked reserved here).
func Bootstrap(ram machine.RAM) *Table {
	numFrames := int(ram.Size() / machine.PageSize)
	t := &Table{
		ram:   ram,
		state: make([]State, numFrames),
	}
	firstFreeFrame := int(ram.FirstFree() / machine.PageSize)
	if firstFreeFrame > numFrames {
		firstFreeFrame = numFrames
	}
	for i := 0; i < firstFreeFrame; i++ {
		t.state[i] = Reserved
	}
	for i := firstFreeFrame; i < numFrames; i++ {
		t.state[i] = Free
	}
	t.cursor = firstFreeFrame
	return t
}

// NumFrames reports the total number of frames the table manages.
func (t *Table) NumFrames() int {
	return len(t.state)
}

// RAM returns the backing RAM, so callers (the page table, in
// particular) can obtain a byte view of an allocated frame.
func (t *Table) RAM() machine.RAM {
	return t.ram
}

// AllocKPages allocates n contiguous frames. Only n == 1 is supported;
// any other value returns (0, false). On success the frame is zero-filled
// and its physical address returned.
func (t *Table) AllocKPages(n int) (uintptr, bool) {
	if n != 1 {
		return 0, false
	}
	t.mu.Lock()
	if t.cursor >= len(t.state) {
		t.mu.Unlock()
		return 0, false
	}
	idx := t.cursor
	t.state[idx] = Used
	next := idx + 1
	for next < len(t.state) && t.state[next] != Free {
		next++
	}
	t.cursor = next
	t.mu.Unlock()

	pa := uintptr(idx) * machine.PageSize
	page := t.ram.Frame(pa)
	for i := range page {
		page[i] = 0
	}
	return pa, true
}

// FreeKPages frees the frame at physical address pa, previously returned
// by AllocKPages. Freeing a frame that is not in the used state (double
// free, or a reserved/never-allocated frame) is a silent no-op. pa must
// be page-aligned; an arbitrary caller-supplied address is a programming
// error, so misalignment panics rather than silently truncating.
func (t *Table) FreeKPages(pa uintptr) {
	if pa&machine.PageMask != 0 {
		panic(fmt.Sprintf("frame: FreeKPages called with unaligned address %#x", pa))
	}
	idx := int(pa / machine.PageSize)

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.state) {
		return
	}
	if t.state[idx] != Used {
		return
	}
	t.state[idx] = Free
	if idx < t.cursor {
		t.cursor = idx
	}
}

// Stats reports a point-in-time snapshot of frame counts.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{NumFrames: len(t.state)}
	for _, st := range t.state {
		switch st {
		case Reserved:
			s.Reserved++
		case Free:
			s.Free++
		case Used:
			s.Used++
		}
	}
	return s
}

// FreeCursorHint exposes free_cursor for tests and the monitor. It is a
// hint, not a guarantee of the earliest free frame.
func (t *Table) FreeCursorHint() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}
