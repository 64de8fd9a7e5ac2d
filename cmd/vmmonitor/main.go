// Command vmmonitor is an interactive REPL for driving the VM subsystem
// by hand: define regions, fault pages, clone and free address spaces,
// and inspect address space, frame table and page table state.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/KazaHesto/COMP3231-Asst3/addrspace"
	"github.com/KazaHesto/COMP3231-Asst3/machine"
	"github.com/KazaHesto/COMP3231-Asst3/vm"
)

func main() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "vmmonitor: stdin is not a terminal")
		os.Exit(1)
	}
	saved, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vmmonitor:", err)
		os.Exit(1)
	}
	defer term.Restore(fd, saved)

	t := term.NewTerminal(os.Stdin, "vm> ")
	mon := newMonitor(t)
	mon.run()
}

type monitor struct {
	t      *term.Terminal
	tlb    *machine.FakeTLB
	sys    *vm.Subsystem
	spaces map[string]*addrspace.AS
}

func newMonitor(t *term.Terminal) *monitor {
	ram := machine.NewSliceRAM(4*1024*1024, 0)
	tlb := machine.NewFakeTLB()
	return &monitor{
		t:      t,
		tlb:    tlb,
		sys:    vm.Bootstrap(ram, tlb),
		spaces: map[string]*addrspace.AS{},
	}
}

func (m *monitor) run() {
	fmt.Fprintln(m.t, "vm monitor — type 'help' for commands, 'quit' to exit")
	for {
		line, err := m.t.ReadLine()
		if err != nil {
			if err != io.EOF {
				fmt.Fprintln(m.t, "read error:", err)
			}
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		m.dispatch(fields)
	}
}

func (m *monitor) dispatch(fields []string) {
	switch fields[0] {
	case "help":
		m.help()
	case "as":
		m.cmdAS(fields[1:])
	case "region":
		m.cmdRegion(fields[1:])
	case "fault":
		m.cmdFault(fields[1:])
	case "clone":
		m.cmdClone(fields[1:])
	case "free":
		m.cmdFree(fields[1:])
	case "ps":
		m.cmdPS()
	case "stats":
		m.cmdStats()
	default:
		fmt.Fprintf(m.t, "unknown command %q; try 'help'\n", fields[0])
	}
}

func (m *monitor) help() {
	fmt.Fprint(m.t, `commands:
  as <name>                         create a named address space
  region <name> <vaddr> <size> <r|w|x flags>   define a region, e.g. region p1 0x400000 0x2000 rw
  fault <name> <read|write> <addr>  resolve a page fault
  clone <src> <dst>                 clone an address space's mappings
  free <name>                       tear down an address space
  ps                                list known address spaces
  stats                             print VM subsystem counters
  quit                              leave the monitor
`)
}

func (m *monitor) cmdAS(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(m.t, "usage: as <name>")
		return
	}
	if _, exists := m.spaces[args[0]]; exists {
		fmt.Fprintln(m.t, "already exists:", args[0])
		return
	}
	m.spaces[args[0]] = addrspace.New()
	fmt.Fprintln(m.t, "created", args[0])
}

func (m *monitor) cmdRegion(args []string) {
	if len(args) != 4 {
		fmt.Fprintln(m.t, "usage: region <name> <vaddr> <size> <r|w|x flags>")
		return
	}
	as, ok := m.spaces[args[0]]
	if !ok {
		fmt.Fprintln(m.t, "no such address space:", args[0])
		return
	}
	vaddr, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		fmt.Fprintln(m.t, "bad vaddr:", err)
		return
	}
	size, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		fmt.Fprintln(m.t, "bad size:", err)
		return
	}
	flags := args[3]
	r := strings.ContainsRune(flags, 'r')
	w := strings.ContainsRune(flags, 'w')
	x := strings.ContainsRune(flags, 'x')
	if err := as.DefineRegion(uintptr(vaddr), uintptr(size), r, w, x); err != nil {
		fmt.Fprintln(m.t, "rejected:", err)
		return
	}
	fmt.Fprintln(m.t, "defined")
}

func (m *monitor) cmdFault(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(m.t, "usage: fault <name> <read|write> <addr>")
		return
	}
	as, ok := m.spaces[args[0]]
	if !ok {
		fmt.Fprintln(m.t, "no such address space:", args[0])
		return
	}
	var ft vm.FaultType
	switch args[1] {
	case "read":
		ft = vm.Read
	case "write":
		ft = vm.Write
	default:
		fmt.Fprintln(m.t, "fault type must be read or write")
		return
	}
	addr, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		fmt.Fprintln(m.t, "bad addr:", err)
		return
	}
	m.sys.SetCurrentAS(as)
	if err := m.sys.Fault(ft, uintptr(addr)); err != nil {
		fmt.Fprintln(m.t, "fault:", err)
		return
	}
	fmt.Fprintln(m.t, "resolved")
}

func (m *monitor) cmdClone(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(m.t, "usage: clone <src> <dst>")
		return
	}
	src, ok := m.spaces[args[0]]
	if !ok {
		fmt.Fprintln(m.t, "no such address space:", args[0])
		return
	}
	if _, exists := m.spaces[args[1]]; exists {
		fmt.Fprintln(m.t, "destination name already in use:", args[1])
		return
	}
	dst, err := addrspace.Copy(src)
	if err != nil {
		fmt.Fprintln(m.t, "copy:", err)
		return
	}
	if err := m.sys.CloneProc(src, dst); err != nil {
		fmt.Fprintln(m.t, "clone:", err)
		return
	}
	m.spaces[args[1]] = dst
	fmt.Fprintln(m.t, "cloned", args[0], "->", args[1])
}

func (m *monitor) cmdFree(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(m.t, "usage: free <name>")
		return
	}
	as, ok := m.spaces[args[0]]
	if !ok {
		fmt.Fprintln(m.t, "no such address space:", args[0])
		return
	}
	m.sys.FreeProc(as)
	delete(m.spaces, args[0])
	fmt.Fprintln(m.t, "freed", args[0])
}

func (m *monitor) cmdPS() {
	if len(m.spaces) == 0 {
		fmt.Fprintln(m.t, "no address spaces")
		return
	}
	for name, as := range m.spaces {
		fmt.Fprintf(m.t, "%s: %d region(s), stack_end=%#x\n", name, len(as.Regions()), as.StackEnd())
	}
}

func (m *monitor) cmdStats() {
	s := m.sys.Stats.Snapshot()
	fmt.Fprintf(m.t, "faults=%d (read=%d write=%d stack=%d errors=%d)\n",
		s.Faults, s.ReadFaults, s.WriteFaults, s.StackFaults, s.FaultErrors)
	fmt.Fprintf(m.t, "page table: inserts=%d hits=%d full=%d entries=%d avg_probe=%.2f\n",
		s.PTInserts, s.PTHits, s.PTFull, m.sys.PT.Count(), s.AverageProbeLength())
	ftStats := m.sys.FT.Stats()
	fmt.Fprintf(m.t, "frames: total=%d reserved=%d free=%d used=%d out_of_mem=%d\n",
		ftStats.NumFrames, ftStats.Reserved, ftStats.Free, ftStats.Used, s.FTOutOfMem)
}
