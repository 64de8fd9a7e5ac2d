// Package pagetable implements the process-wide hashed inverted page
// table mapping (address-space identity, virtual page) to physical
// frame. Collision resolution is open addressing with linear probing,
// which keeps the teardown invariant (every occupied slot reachable
// from its home bucket by forward probing) simple to state and repair.
package pagetable

import (
	"errors"
	"sync"

	"github.com/KazaHesto/COMP3231-Asst3/frame"
	"github.com/KazaHesto/COMP3231-Asst3/machine"
	"github.com/KazaHesto/COMP3231-Asst3/stats"
)

// ErrFull is returned when index_of scans the whole table without
// finding a match or an empty slot.
var ErrFull = errors.New("pagetable: table full")

// ErrNoMem is returned when a frame allocation needed to install a new
// PTE fails.
var ErrNoMem = errors.New("pagetable: out of memory")

type pte struct {
	asid  uintptr // 0 means the slot is empty
	vpage uintptr
	frame uintptr
	write bool
}

// Table is the global hashed inverted page table, sized at
// 2 * (RAM bytes / page size) entries at bootstrap.
type Table struct {
	mu    sync.Mutex
	ft    *frame.Table
	slots []pte
	st    *stats.VMStats
}

// New allocates an empty page table with room for numPages entries.
func New(numPages int, ft *frame.Table, st *stats.VMStats) *Table {
	if numPages <= 0 {
		panic("pagetable: numPages must be positive")
	}
	return &Table{
		ft:    ft,
		slots: make([]pte, numPages),
		st:    st,
	}
}

// NumPages reports the table's fixed capacity.
func (t *Table) NumPages() int {
	return len(t.slots)
}

func (t *Table) hash(asid, vpage uintptr) int {
	mixed := asid ^ (vpage >> machine.PageShift)
	return int(mixed % uintptr(len(t.slots)))
}

// indexOf locates the slot for (asid, vpage): an occupied slot holding a
// match, or the first empty slot reachable from the home bucket by
// forward linear probing. full is true if neither was found within
// numPages probes, in which case idx is meaningless. The number of
// probes taken is tracked with an explicit counter rather than by
// comparing the wandering index back to the starting index, since the
// latter cannot distinguish "wrapped all the way around" from "never
// moved".
func (t *Table) indexOf(asid, vpage uintptr) (idx int, found bool, full bool) {
	i := t.hash(asid, vpage)
	probes := 0
	for n := 0; n < len(t.slots); n++ {
		s := &t.slots[i]
		probes++
		if s.asid == 0 {
			t.recordProbe(probes)
			return i, false, false
		}
		if s.asid == asid && s.vpage == vpage {
			t.recordProbe(probes)
			return i, true, false
		}
		i++
		if i == len(t.slots) {
			i = 0
		}
	}
	t.recordProbe(probes)
	return 0, false, true
}

func (t *Table) recordProbe(n int) {
	if t.st == nil {
		return
	}
	t.st.ProbeLength.Add(int64(n))
	t.st.ProbeSamples.Inc()
}

// Lookup resolves the fault-path query for (asid, vpage): if a PTE
// already exists it returns its frame; otherwise it allocates a fresh
// frame (zero-filled by the frame table), installs a new PTE with the
// given write bit, and returns that frame's address. Errors are ErrFull
// (table full) or ErrNoMem (frame allocation failed).
//
// Lock ordering: this method holds the table's lock for its duration and
// calls frame.Table.AllocKPages from inside that critical section, which
// acquires its own lock internally (pt_lock -> ft_lock, never reversed).
func (t *Table) Lookup(asid, vpage uintptr, write bool) (uintptr, error) {
	if asid == 0 {
		panic("pagetable: asid must not be zero")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, found, full := t.indexOf(asid, vpage)
	if full {
		t.bumpFull()
		return 0, ErrFull
	}
	if found {
		t.bumpHit()
		return t.slots[idx].frame, nil
	}

	pa, ok := t.ft.AllocKPages(1)
	if !ok {
		t.bumpOOM()
		return 0, ErrNoMem
	}
	t.slots[idx] = pte{asid: asid, vpage: vpage, frame: pa, write: write}
	t.bumpInsert()
	return pa, nil
}

func (t *Table) bumpFull() {
	if t.st != nil {
		t.st.PTFull.Inc()
	}
}
func (t *Table) bumpHit() {
	if t.st != nil {
		t.st.PTHits.Inc()
	}
}
func (t *Table) bumpInsert() {
	if t.st != nil {
		t.st.PTInserts.Inc()
	}
}
func (t *Table) bumpOOM() {
	if t.st != nil {
		t.st.FTOutOfMem.Inc()
	}
}

// eraseAt clears slot i and repairs the linear-probing invariant for
// every slot that followed it, using the standard backward-shift
// deletion for open-addressed tables: a later occupant is pulled back
// into the gap only if doing so does not move it before its own home
// bucket. The walk stops at the next empty slot, wrapping as needed.
func (t *Table) eraseAt(i int) {
	t.slots[i] = pte{}
	j := i
	for {
		j++
		if j == len(t.slots) {
			j = 0
		}
		if t.slots[j].asid == 0 {
			return
		}
		k := t.hash(t.slots[j].asid, t.slots[j].vpage)
		if i <= j {
			if i < k && k <= j {
				continue
			}
		} else {
			if i < k || k <= j {
				continue
			}
		}
		t.slots[i] = t.slots[j]
		t.slots[j] = pte{}
		i = j
	}
}

// FreeProc tears down every PTE owned by asid, freeing each one's frame
// and closing the gap it leaves so the linear-probing invariant holds
// for every remaining entry, including ones that wrap around the end of
// the table. Tolerates asid == 0 (nothing to do).
func (t *Table) FreeProc(asid uintptr) {
	if asid == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < len(t.slots); {
		if t.slots[i].asid == asid {
			pa := t.slots[i].frame
			t.eraseAt(i)
			t.ft.FreeKPages(pa)
			// eraseAt may have shifted a surviving entry into slot i;
			// re-examine it before moving on.
			continue
		}
		i++
	}
}

// CloneProc duplicates every PTE owned by old into new, copying each
// frame's contents byte-for-byte into a freshly allocated frame and
// preserving the write bit. On failure (table full or frame exhaustion)
// it rolls back by freeing whatever it already installed for new and
// returns ErrFull/ErrNoMem; old is left untouched in every case.
func (t *Table) CloneProc(old, new uintptr) error {
	if old == 0 || new == 0 {
		panic("pagetable: asid must not be zero")
	}

	t.mu.Lock()
	type entry struct {
		vpage, frame uintptr
		write        bool
	}
	var entries []entry
	for i := range t.slots {
		if t.slots[i].asid == old {
			entries = append(entries, entry{t.slots[i].vpage, t.slots[i].frame, t.slots[i].write})
		}
	}

	for _, e := range entries {
		idx, found, full := t.indexOf(new, e.vpage)
		if full || found {
			t.mu.Unlock()
			t.FreeProc(new)
			return ErrFull
		}
		pa, ok := t.ft.AllocKPages(1)
		if !ok {
			t.mu.Unlock()
			t.FreeProc(new)
			return ErrNoMem
		}
		copy(t.ft.RAM().Frame(pa), t.ft.RAM().Frame(e.frame))
		t.slots[idx] = pte{asid: new, vpage: e.vpage, frame: pa, write: e.write}
		t.bumpInsert()
	}
	t.mu.Unlock()
	return nil
}

// Invariant reports whether every occupied slot is reachable from its
// home bucket by forward linear probing without crossing an empty slot
// — the property the teardown repair must maintain. Exported for
// property tests; not part of the runtime contract.
func (t *Table) Invariant() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s.asid == 0 {
			continue
		}
		home := t.hash(s.asid, s.vpage)
		j := home
		for {
			if t.slots[j].asid == 0 {
				return false
			}
			if j == i {
				break
			}
			j++
			if j == len(t.slots) {
				j = 0
			}
		}
	}
	return true
}

// Count returns the number of occupied slots, for tests.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s.asid != 0 {
			n++
		}
	}
	return n
}
