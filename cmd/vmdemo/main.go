// Command vmdemo boots the VM subsystem against simulated RAM, drives it
// through a scripted sequence of region definitions, faults, a clone,
// and a free, and prints what happened at each step. With -profile it
// also writes a pprof profile of the run's fault-path counters.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/pprof/profile"

	"github.com/KazaHesto/COMP3231-Asst3/addrspace"
	"github.com/KazaHesto/COMP3231-Asst3/machine"
	"github.com/KazaHesto/COMP3231-Asst3/vm"
)

func main() {
	ramMB := flag.Int("ram-mb", 4, "simulated RAM size in megabytes")
	useMmap := flag.Bool("mmap", false, "back simulated RAM with a real mmap region instead of a Go slice")
	profilePath := flag.String("profile", "", "write a pprof profile of VM subsystem counters to this path")
	flag.Parse()

	ram, cleanup, err := newRAM(*ramMB, *useMmap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmdemo:", err)
		os.Exit(1)
	}
	defer cleanup()

	tlb := machine.NewFakeTLB()
	sys := vm.Bootstrap(ram, tlb)
	fmt.Printf("bootstrapped: %d frames, page table sized for %d entries\n",
		sys.FT.NumFrames(), sys.PT.NumPages())

	runScenarios(sys)

	if *profilePath != "" {
		if err := writeProfile(sys, *profilePath); err != nil {
			fmt.Fprintln(os.Stderr, "vmdemo: writing profile:", err)
			os.Exit(1)
		}
		fmt.Println("wrote profile to", *profilePath)
	}
}

func newRAM(ramMB int, useMmap bool) (machine.RAM, func(), error) {
	size := ramMB * 1024 * 1024
	if useMmap {
		r, err := machine.NewMMapRAM(size, 0)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	return machine.NewSliceRAM(size, 0), func() {}, nil
}

func runScenarios(sys *vm.Subsystem) {
	as := addrspace.New()
	if err := as.DefineRegion(0x400000, 0x2000, true, false, true); err != nil {
		fmt.Println("define_region(text): unexpected error:", err)
	}
	sys.SetCurrentAS(as)

	report("read fault in code region", sys.Fault(vm.Read, 0x400800))
	report("write fault in stack area", sys.Fault(vm.Write, as.StackEnd()-4))

	err := as.DefineRegion(as.StackEnd()-0x2000, 0x2000, true, true, false)
	fmt.Println("define_region overlapping stack_end rejected:", err != nil)

	as.PrepareLoad()
	fmt.Println("prepare_load widened regions:", writableCount(as))
	as.CompleteLoad()
	fmt.Println("complete_load restored regions:", writableCount(as))
	report("write fault on now-read-only region is a fault", sys.Fault(vm.Write, 0x400800))

	twin, err := addrspace.Copy(as)
	if err != nil {
		fmt.Println("as_copy failed:", err)
		return
	}
	if err := sys.CloneProc(as, twin); err != nil {
		fmt.Println("vm_cloneproc failed:", err)
		return
	}
	fmt.Println("vm_cloneproc succeeded; page table entries:", sys.PT.Count())

	sys.FreeProc(twin)
	fmt.Println("vm_freeproc(twin) done; page table entries:", sys.PT.Count())
}

func report(label string, err error) {
	if err != nil {
		fmt.Printf("%s: error: %v\n", label, err)
		return
	}
	fmt.Printf("%s: ok\n", label)
}

func writableCount(as *addrspace.AS) int {
	n := 0
	for _, r := range as.Regions() {
		if r.Write {
			n++
		}
	}
	return n
}

// writeProfile turns the subsystem's counters into a minimal valid
// pprof profile: one sample per counter, each carrying its value as a
// single "count" measurement, attributed to a synthetic location named
// after the counter.
func writeProfile(sys *vm.Subsystem, path string) error {
	snap := sys.Stats.Snapshot()
	counters := []struct {
		name  string
		value int64
	}{
		{"vm_fault", snap.Faults},
		{"vm_fault.read", snap.ReadFaults},
		{"vm_fault.write", snap.WriteFaults},
		{"vm_fault.stack_heuristic", snap.StackFaults},
		{"vm_fault.error", snap.FaultErrors},
		{"pagetable.insert", snap.PTInserts},
		{"pagetable.hit", snap.PTHits},
		{"pagetable.full", snap.PTFull},
		{"frame.out_of_memory", snap.FTOutOfMem},
	}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "events", Unit: "count"}},
		TimeNanos:  time.Now().UnixNano(),
		Comments:   []string{"vmdemo: VM subsystem fault-path counters"},
	}

	for i, c := range counters {
		fn := &profile.Function{ID: uint64(i + 1), Name: c.name}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn}}}
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{c.value},
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return prof.Write(f)
}
