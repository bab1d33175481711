package cellcore

import "fmt"

// State is a cell's lifecycle state (spec §3, §4.5).
type State int

const (
	// StateRunning is the normal operating state of a cell whose CPUs have
	// been released to run guest code.
	StateRunning State = iota
	// StateStarting marks a cell from the point create builds its record
	// until create's publish stage hands it its CPUs (spec §4.5.1).
	StateStarting
	// StateShutdown is reported for a cell whose guest has set its comm
	// region's cell_state to shut_down (spec §4.6), and is the state
	// DestroyCell leaves on a cell it has removed.
	StateShutdown
	// StateFailed marks a cell all of whose CPUs panic_halt has marked
	// failed (spec §4.7); panic_stop does not fail a cell.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStarting:
		return "starting"
	case StateShutdown:
		return "shut_down"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Cell is one partition of the machine: an id, its configuration, the CPU
// set it owns, and cooperative-shutdown bookkeeping (spec §3). Cell carries
// no lock of its own; the Hypervisor's registry lock and the Suspend/Resume
// coordinator together guard all mutation, matching the original's
// reliance on the global cell list lock plus the SMP suspend discipline.
type Cell struct {
	ID     int
	Config CellConfig
	CPUs   *CpuSet

	state State

	// comm is nil for the root cell and for any cell created with
	// FlagUnmanagedExit that never needs the handshake fields touched.
	comm *CommRegion
}

// Name returns the cell's configured name.
func (c *Cell) Name() string {
	if c == nil {
		return "<nil>"
	}
	return c.Config.Name
}

// State returns the cell's current lifecycle state.
func (c *Cell) State() State {
	return c.state
}

// Comm returns the cell's comm region, or nil if it has none (the root
// cell, or a cell created with FlagUnmanagedExit).
func (c *Cell) Comm() *CommRegion {
	return c.comm
}

// IsRoot reports whether this cell is the distinguished root cell: the one
// whose id the registry reserves as zero and which owns all memory/CPUs not
// claimed by any other cell (spec §3, §4.2).
func (c *Cell) IsRoot() bool {
	return c.ID == RootCellID
}

func (c *Cell) String() string {
	return fmt.Sprintf("Cell{id=%d name=%q state=%s cpus=%s}", c.ID, c.Name(), c.state, c.CPUs)
}
