// Package stats holds the lock-free counters the VM subsystem keeps for
// its profiling device. They are always enabled: a handful of atomic
// adds per fault is cheap enough that there is no need to gate them
// behind a build-time flag or console command.
package stats

import "sync/atomic"

// Counter_t is a statistical counter, safe for concurrent use.
type Counter_t int64

// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

// Add adds n to the counter.
func (c *Counter_t) Add(n int64) {
	atomic.AddInt64((*int64)(c), n)
}

// Load reads the current value.
func (c *Counter_t) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// VMStats collects the fault-path and table counters exposed to the
// profiling device (cmd/vmdemo's pprof profile).
type VMStats struct {
	Faults       Counter_t // total vm_fault calls
	ReadFaults   Counter_t
	WriteFaults  Counter_t
	StackFaults  Counter_t // faults resolved by the stack heuristic
	FaultErrors  Counter_t // faults that returned an error, other than an invalid fault type
	PTInserts    Counter_t // new PTEs installed
	PTHits       Counter_t // fault-path lookups that found an existing PTE
	PTFull       Counter_t // index_of reported the table full
	FTOutOfMem   Counter_t // alloc_kpages(1) failed
	ProbeLength  Counter_t // cumulative linear-probe distance across all index_of calls
	ProbeSamples Counter_t // number of index_of calls counted in ProbeLength
}

// Snapshot is a point-in-time copy of VMStats' counters, safe to read
// without racing further updates.
type Snapshot struct {
	Faults, ReadFaults, WriteFaults, StackFaults, FaultErrors int64
	PTInserts, PTHits, PTFull, FTOutOfMem                     int64
	ProbeLength, ProbeSamples                                 int64
}

// Snapshot reads every counter once.
func (s *VMStats) Snapshot() Snapshot {
	return Snapshot{
		Faults:       s.Faults.Load(),
		ReadFaults:   s.ReadFaults.Load(),
		WriteFaults:  s.WriteFaults.Load(),
		StackFaults:  s.StackFaults.Load(),
		FaultErrors:  s.FaultErrors.Load(),
		PTInserts:    s.PTInserts.Load(),
		PTHits:       s.PTHits.Load(),
		PTFull:       s.PTFull.Load(),
		FTOutOfMem:   s.FTOutOfMem.Load(),
		ProbeLength:  s.ProbeLength.Load(),
		ProbeSamples: s.ProbeSamples.Load(),
	}
}

// AverageProbeLength returns the mean linear-probe distance observed so
// far, or 0 if no samples have been recorded.
func (s Snapshot) AverageProbeLength() float64 {
	if s.ProbeSamples == 0 {
		return 0
	}
	return float64(s.ProbeLength) / float64(s.ProbeSamples)
}
