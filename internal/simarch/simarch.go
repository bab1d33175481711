// Package simarch is an in-memory stand-in for the architecture-specific
// primitives cellcore.Arch declares out of scope: suspending/resuming and
// parking/resetting physical CPUs, building a cell's page tables, and
// installing/removing memory mappings. It exists so the lifecycle engine
// can be exercised and demonstrated without real hardware or a real
// virtualization entry/exit path, the way a test double stands in for a
// hypercall transport in the teacher's own test suites.
package simarch

import (
	"fmt"
	"sync"

	"github.com/minipart/hvcore/cellcore"
)

// mapping is one installed guest-physical-to-host-physical mapping,
// indexed by the owning cell and the region's host-physical range.
type mapping struct {
	cellID int
	region cellcore.MemoryRegion
}

// Machine is a simulated physical machine: a set of CPUs that can be
// suspended/resumed/parked/reset, and a table of installed memory mappings.
// It implements cellcore.Arch.
type Machine struct {
	mu sync.Mutex

	suspended map[int]bool
	failed    map[int]bool
	mappings  []mapping

	// FailSuspend, if set (non-negative), names a cpu id whose SuspendCPU
	// calls fail for as long as it stays set; used by tests to exercise
	// create/destroy's suspend-failure paths.
	FailSuspend int

	// FailUnmap, if set (non-zero), causes every UnmapMemoryRegion call
	// starting at this physical address to fail, exercising create's rollback.
	FailUnmap uint64
}

// NewMachine returns an idle simulated machine.
func NewMachine() *Machine {
	return &Machine{
		suspended:   make(map[int]bool),
		failed:      make(map[int]bool),
		FailSuspend: -1,
	}
}

func (m *Machine) SuspendCPU(cpu int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cpu == m.FailSuspend {
		return fmt.Errorf("simarch: cpu %d refused to suspend", cpu)
	}
	m.suspended[cpu] = true
	return nil
}

func (m *Machine) ResumeCPU(cpu int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspended, cpu)
	return nil
}

func (m *Machine) ParkCPU(cpu int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspended, cpu)
	return nil
}

func (m *Machine) ResetCPU(cpu int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failed, cpu)
	return nil
}

func (m *Machine) ShutdownCPU(cpu int) error {
	return nil
}

func (m *Machine) CellArchCreate(cell *cellcore.Cell) error {
	return nil
}

func (m *Machine) CellArchDestroy(cell *cellcore.Cell) error {
	return nil
}

func (m *Machine) ArchShutdown() error {
	return nil
}

func (m *Machine) MapMemoryRegion(cell *cellcore.Cell, region cellcore.MemoryRegion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = append(m.mappings, mapping{cellID: cell.ID, region: region})
	return nil
}

func (m *Machine) UnmapMemoryRegion(cell *cellcore.Cell, region cellcore.MemoryRegion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUnmap != 0 && region.PhysStart == m.FailUnmap {
		return fmt.Errorf("simarch: unmap of %#x refused", region.PhysStart)
	}
	// The region may be a sub-range of a larger installed mapping (the
	// root's 1:1 mapping); what is left of that mapping on either side stays.
	end := region.End()
	for i, mp := range m.mappings {
		if mp.cellID != cell.ID || region.PhysStart < mp.region.PhysStart || end > mp.region.End() {
			continue
		}
		m.mappings = append(m.mappings[:i], m.mappings[i+1:]...)
		if head := region.PhysStart - mp.region.PhysStart; head > 0 {
			m.mappings = append(m.mappings, mapping{cellID: cell.ID, region: cellcore.MemoryRegion{
				PhysStart: mp.region.PhysStart, VirtStart: mp.region.VirtStart, Size: head, Flags: mp.region.Flags}})
		}
		if tail := mp.region.End() - end; tail > 0 {
			m.mappings = append(m.mappings, mapping{cellID: cell.ID, region: cellcore.MemoryRegion{
				PhysStart: end, VirtStart: mp.region.VirtStart + (end - mp.region.PhysStart), Size: tail, Flags: mp.region.Flags}})
		}
		return nil
	}
	return fmt.Errorf("simarch: no mapping of %#x for cell %d", region.PhysStart, cell.ID)
}

// IsSuspended reports whether cpu is currently parked by a SuspendCPU call
// not yet matched by ResumeCPU/ParkCPU. Test helper.
func (m *Machine) IsSuspended(cpu int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended[cpu]
}

// MappingCount returns the number of mappings currently installed for cell.
// Test helper.
func (m *Machine) MappingCount(cellID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mp := range m.mappings {
		if mp.cellID == cellID {
			n++
		}
	}
	return n
}
