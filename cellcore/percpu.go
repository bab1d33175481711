package cellcore

import "sync"

// shutdownState is a CPU's state in the global SHUTDOWN handshake (spec
// §4.5.4).
type shutdownState int32

const (
	shutdownNone shutdownState = iota
	shutdownStarted
	shutdownDenied
)

// PerCpu is the hypervisor-global per-physical-CPU record: which cell owns
// it, whether it has failed, and its slot in the shutdown handshake (spec
// §3).
type PerCpu struct {
	ID      int
	cell    *Cell
	failed  bool
	stopped bool

	shutdownState shutdownState
}

// Cell returns the cell this CPU currently belongs to.
func (p *PerCpu) Cell() *Cell {
	return p.cell
}

// Failed reports whether panic_halt has marked this CPU failed (panic_stop
// only marks it stopped).
func (p *PerCpu) Failed() bool {
	return p.failed
}

// PerCpuTable is the hypervisor's table of PerCpu records, indexed by
// physical CPU id.
type PerCpuTable struct {
	mu   sync.Mutex
	cpus map[int]*PerCpu
}

// NewPerCpuTable builds a table seeding every CPU in initial's set as owned
// by initial (the root cell at boot).
func NewPerCpuTable(initial *Cell) *PerCpuTable {
	t := &PerCpuTable{cpus: make(map[int]*PerCpu)}
	for _, id := range initial.CPUs.Iter() {
		t.cpus[id] = &PerCpu{ID: id, cell: initial}
	}
	return t
}

// Get returns the record for cpu, creating one owned by no cell if absent
// (a cpu id the system config never declared is simply untracked until
// first referenced).
func (t *PerCpuTable) Get(cpu int) *PerCpu {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.cpus[cpu]
	if !ok {
		p = &PerCpu{ID: cpu}
		t.cpus[cpu] = p
	}
	return p
}

// Reassign moves cpu's ownership to cell and clears its failed flag,
// matching the per_cpu updates in create's publish stage and destroy's
// park stage (spec §4.5.1 step 10, §4.5.2 step 5).
func (t *PerCpuTable) Reassign(cpu int, cell *Cell) {
	p := t.Get(cpu)
	t.mu.Lock()
	defer t.mu.Unlock()
	p.cell = cell
	p.failed = false
}
