package machine

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// MMapRAM backs simulated physical RAM with a real anonymous mapping, so
// that frame zero-fill and page-to-page copy during clone touch actual
// pages rather than a plain Go slice — the same direct-map-to-real-memory
// relationship the kernel's physical allocator has with the machine it
// runs on.
type MMapRAM struct {
	mu        sync.Mutex
	bytes     []byte
	firstFree uintptr
}

// NewMMapRAM mmaps size bytes of anonymous memory to serve as simulated
// RAM, reserving reservedBytes at the bottom for the "kernel image".
func NewMMapRAM(size int, reservedBytes int) (*MMapRAM, error) {
	checkSize(size)
	if reservedBytes < 0 || reservedBytes > size {
		return nil, fmt.Errorf("machine: bad reservedBytes %d", reservedBytes)
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("machine: mmap %d bytes: %w", size, err)
	}
	return &MMapRAM{
		bytes:     b,
		firstFree: roundup(uintptr(reservedBytes), PageSize),
	}, nil
}

// Close releases the mapping. Safe to call once; callers that let the
// process exit need not call it.
func (r *MMapRAM) Close() error {
	return unix.Munmap(r.bytes)
}

func (r *MMapRAM) Size() uintptr { return uintptr(len(r.bytes)) }

func (r *MMapRAM) FirstFree() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstFree
}

func (r *MMapRAM) StealMem(n int) uintptr {
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

func (r *MMapRAM) Frame(pa uintptr) []byte {
	if pa&PageMask != 0 {
		panic("machine: unaligned frame address")
	}
	end := pa + PageSize
	if end > uintptr(len(r.bytes)) {
		panic("machine: frame address out of range")
	}
	return r.bytes[pa:end]
}
