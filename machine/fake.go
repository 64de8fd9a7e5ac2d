package machine

import "sync"

// SliceRAM is a plain-slice backed RAM, used by tests and by callers that
// do not need a real mmap-backed region.
type SliceRAM struct {
	mu        sync.Mutex
	bytes     []byte
	firstFree uintptr
}

// NewSliceRAM allocates size bytes of simulated RAM, reserving
// reservedBytes at the bottom of the address range for the "kernel
// image" the way a real bootloader would.
func NewSliceRAM(size int, reservedBytes int) *SliceRAM {
	checkSize(size)
	if reservedBytes < 0 || reservedBytes > size {
		panic("machine: bad reservedBytes")
	}
	return &SliceRAM{
		bytes:     make([]byte, size),
		firstFree: roundup(uintptr(reservedBytes), PageSize),
	}
}

func (r *SliceRAM) Size() uintptr { return uintptr(len(r.bytes)) }

func (r *SliceRAM) FirstFree() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstFree
}

func (r *SliceRAM) StealMem(n int) uintptr {
	checkSize(n)
	r.mu.Lock()
	defer r.mu.Unlock()
	pa := r.firstFree
	if pa+uintptr(n) > uintptr(len(r.bytes)) {
		panic("machine: out of RAM in StealMem")
	}
	r.firstFree = roundup(pa+uintptr(n), PageSize)
	return pa
}

func (r *SliceRAM) Frame(pa uintptr) []byte {
	if pa&PageMask != 0 {
		panic("machine: unaligned frame address")
	}
	end := pa + PageSize
	if end > uintptr(len(r.bytes)) {
		panic("machine: frame address out of range")
	}
	return r.bytes[pa:end]
}

// FakeTLB is an in-process software model of the hardware TLB, used by
// tests and the demo/monitor commands. WriteRandom stands in for the
// hardware's random-replacement write, choosing the slot with a
// deterministic rotating counter.
type FakeTLB struct {
	mu      sync.Mutex
	ehi     [NumTLB]uint32
	elo     [NumTLB]uint32
	valid   [NumTLB]bool
	nextRnd int
}

// NewFakeTLB returns an empty TLB.
func NewFakeTLB() *FakeTLB {
	return &FakeTLB{}
}

func (t *FakeTLB) Read(i int) (ehi, elo uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ehi[i], t.elo[i]
}

func (t *FakeTLB) Write(ehi, elo uint32, i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ehi[i], t.elo[i], t.valid[i] = ehi, elo, true
}

// WriteRandom installs the entry at a slot chosen by a simple rotating
// counter. This is deterministic (unlike real hardware's LFSR-driven
// random register), which makes the demo and tests reproducible; a
// caller only needs some existing entry to be evicted, not true
// randomness.
func (t *FakeTLB) WriteRandom(ehi, elo uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.nextRnd
	t.nextRnd = (t.nextRnd + 1) % NumTLB
	t.ehi[i], t.elo[i], t.valid[i] = ehi, elo, true
}

func (t *FakeTLB) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.valid {
		t.ehi[i] = TLBInvalidHi(i)
		t.elo[i] = TLBInvalidLo()
		t.valid[i] = false
	}
}

// Lookup is a test/monitor convenience, not part of the machine.TLB
// contract: it walks the entries looking for a valid match.
func (t *FakeTLB) Lookup(vpage uintptr) (elo uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hi := uint32(vpage)
	for i, v := range t.valid {
		if v && t.ehi[i] == hi {
			return t.elo[i], true
		}
	}
	return 0, false
}
